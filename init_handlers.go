package main

import (
	"github.com/akinalp/corkboard/config"
	"github.com/akinalp/corkboard/database"
	"github.com/akinalp/corkboard/handlers"
	"github.com/akinalp/corkboard/ws"
)

// Handlers groups every HTTP handler. Handlers are thin: parse the request,
// call a service, write the envelope.
type Handlers struct {
	Auth    *handlers.AuthHandler
	Server  *handlers.ServerHandler
	Member  *handlers.MemberHandler
	Channel *handlers.ChannelHandler
	Message *handlers.MessageHandler
	Invite  *handlers.InviteHandler
	Health  *handlers.HealthHandler
	WS      *ws.Handler
}

func initHandlers(svcs *Services, db *database.DB, hub *ws.Hub, cfg *config.Config) *Handlers {
	return &Handlers{
		Auth:    handlers.NewAuthHandler(),
		Server:  handlers.NewServerHandler(svcs.Server),
		Member:  handlers.NewMemberHandler(svcs.Server),
		Channel: handlers.NewChannelHandler(svcs.Channel),
		Message: handlers.NewMessageHandler(svcs.Message),
		Invite:  handlers.NewInviteHandler(svcs.Invite),
		Health:  handlers.NewHealthHandler(db.Conn, hub),
		WS:      ws.NewHandler(hub, svcs.Token, svcs.User, cfg.Server.AllowedOrigins),
	}
}
