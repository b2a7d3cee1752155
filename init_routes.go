package main

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/akinalp/corkboard/middleware"
	"github.com/akinalp/corkboard/services"
)

// initRoutes builds the middleware chains and registers every endpoint.
//
// Literal paths go before parametric ones: "/api/servers/public" must be
// registered ahead of "/api/servers/{serverId}".
func initRoutes(mux *http.ServeMux, h *Handlers, svcs *Services, log *zap.Logger) {
	authMw := middleware.NewAuthMiddleware(svcs.Token, svcs.User, log)
	policyMw := middleware.NewServerPolicyMiddleware(svcs.Gate)

	auth := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(http.HandlerFunc(handler))
	}
	authServer := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(policyMw.Require(services.PolicyServerMember, http.HandlerFunc(handler)))
	}
	authServerModerator := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(policyMw.Require(services.PolicyServerModerator, http.HandlerFunc(handler)))
	}
	authServerOwner := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(policyMw.Require(services.PolicyServerOwner, http.HandlerFunc(handler)))
	}

	mux.HandleFunc("GET /api/health", h.Health.Check)
	mux.HandleFunc("GET /ws", h.WS.HandleConnection)

	mux.Handle("GET /api/users/me", auth(h.Auth.Me))

	// Servers
	mux.Handle("GET /api/servers", auth(h.Server.ListMine))
	mux.Handle("POST /api/servers", auth(h.Server.Create))
	mux.Handle("GET /api/servers/public", auth(h.Server.ListPublic))
	mux.Handle("GET /api/servers/{serverId}", authServer(h.Server.Get))
	mux.Handle("PATCH /api/servers/{serverId}", authServerOwner(h.Server.Update))
	mux.Handle("DELETE /api/servers/{serverId}", authServerOwner(h.Server.Delete))
	mux.Handle("POST /api/servers/{serverId}/join", auth(h.Server.Join))
	mux.Handle("POST /api/servers/{serverId}/leave", authServer(h.Server.Leave))

	// Members
	mux.Handle("GET /api/servers/{serverId}/members", authServer(h.Member.List))
	mux.Handle("PATCH /api/servers/{serverId}/members/{userId}", authServerOwner(h.Member.UpdateRole))
	mux.Handle("DELETE /api/servers/{serverId}/members/{userId}", authServer(h.Member.Remove))

	// Channels
	mux.Handle("GET /api/servers/{serverId}/channels", authServer(h.Channel.List))
	mux.Handle("POST /api/servers/{serverId}/channels", authServerModerator(h.Channel.Create))
	mux.Handle("PATCH /api/servers/{serverId}/channels/{channelId}", authServerModerator(h.Channel.Update))
	mux.Handle("DELETE /api/servers/{serverId}/channels/{channelId}", authServerModerator(h.Channel.Delete))

	// Messages. The channel's server is resolved by the service.
	mux.Handle("GET /api/channels/{channelId}/messages", auth(h.Message.List))
	mux.Handle("POST /api/channels/{channelId}/messages", auth(h.Message.Create))

	// Invites
	mux.Handle("GET /api/servers/{serverId}/invites", authServer(h.Invite.List))
	mux.Handle("POST /api/servers/{serverId}/invites", authServer(h.Invite.Create))
	mux.Handle("DELETE /api/servers/{serverId}/invites/{inviteId}", authServer(h.Invite.Revoke))
	mux.Handle("GET /api/invites/{code}", auth(h.Invite.Preview))
	mux.Handle("POST /api/invites/{code}/redeem", auth(h.Invite.Redeem))
}
