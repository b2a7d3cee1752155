package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/akinalp/corkboard/pkg"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ConnectionCounter is satisfied by *ws.Hub.
type ConnectionCounter interface {
	ConnectionCount() int
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Connections int    `json:"connections"`
}

// HealthHandler reports liveness. No auth.
type HealthHandler struct {
	db  Pinger
	hub ConnectionCounter
}

// NewHealthHandler is the constructor.
func NewHealthHandler(db Pinger, hub ConnectionCounter) *HealthHandler {
	return &HealthHandler{db: db, hub: hub}
}

// Check godoc
// GET /api/health
// 200 when the database answers a ping, 503 otherwise.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Database: "ok", Connections: h.hub.ConnectionCount()}
	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = "unreachable"
		pkg.JSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	pkg.JSON(w, http.StatusOK, resp)
}
