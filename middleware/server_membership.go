package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/akinalp/corkboard/handlers"
	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg"
	"github.com/akinalp/corkboard/services"
)

// ServerPolicyMiddleware checks a named authorization policy against the
// {serverId} path value. It runs after AuthMiddleware.
type ServerPolicyMiddleware struct {
	gate services.AuthorizationGate
}

// NewServerPolicyMiddleware is the constructor.
func NewServerPolicyMiddleware(gate services.AuthorizationGate) *ServerPolicyMiddleware {
	return &ServerPolicyMiddleware{gate: gate}
}

// Require admits the request when policy holds for the caller and stores
// the parsed server id under handlers.ServerIDContextKey.
//
//	policyMw.Require(services.PolicyServerMember, http.HandlerFunc(h.Channel.List))
func (m *ServerPolicyMiddleware) Require(policy services.Policy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(handlers.UserContextKey).(*models.User)
		if !ok {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
			return
		}

		serverID, err := strconv.ParseInt(r.PathValue("serverId"), 10, 64)
		if err != nil || serverID <= 0 {
			pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid serverId")
			return
		}

		if err := m.gate.Authorize(r.Context(), policy, user.ID, serverID); err != nil {
			pkg.Error(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), handlers.ServerIDContextKey, serverID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
