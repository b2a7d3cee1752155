package ws

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/akinalp/corkboard/models"
)

// TokenValidator is the slice of the token service the handler needs.
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
}

// UserSyncer refreshes the local user row from token claims.
type UserSyncer interface {
	Sync(ctx context.Context, claims *models.TokenClaims) (*models.User, error)
}

// Handler upgrades authenticated HTTP requests to websocket connections.
type Handler struct {
	hub            *Hub
	tokenValidator TokenValidator
	users          UserSyncer
	upgrader       websocket.Upgrader
}

// NewHandler is the constructor. allowedOrigins follows the CORS list;
// "*" allows any origin.
func NewHandler(hub *Hub, tokenValidator TokenValidator, users UserSyncer, allowedOrigins []string) *Handler {
	oc := newOriginChecker(allowedOrigins)
	return &Handler{
		hub:            hub,
		tokenValidator: tokenValidator,
		users:          users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     oc.check,
		},
	}
}

// HandleConnection serves GET /ws?token=JWT. Browsers cannot set headers on
// a websocket handshake, so the token comes from the query string; an
// Authorization: Bearer header is accepted too.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.tokenValidator.ValidateAccessToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	user, err := h.users.Sync(r.Context(), claims)
	if err != nil {
		h.hub.log.Error("failed to sync user", zap.String("user_id", claims.UserID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Info("upgrade failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}

	client := newClient(h.hub, conn, uuid.NewString(), user.ID, user.DisplayName)
	if !h.hub.registerClient(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	h.hub.sendToClient(client, Event{Op: OpReady, Data: ReadyData{
		SessionID:   client.id,
		UserID:      user.ID,
		DisplayName: user.DisplayName,
	}})
	client.ReadPump()
}
