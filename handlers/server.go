package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg"
	"github.com/akinalp/corkboard/services"
)

// ServerHandler serves server CRUD, the public directory and join/leave.
type ServerHandler struct {
	serverService services.ServerService
}

// NewServerHandler is the constructor.
func NewServerHandler(serverService services.ServerService) *ServerHandler {
	return &ServerHandler{serverService: serverService}
}

// ListMine godoc
// GET /api/servers
// Servers the caller belongs to, most recently active first.
func (h *ServerHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}

	servers, err := h.serverService.ListMine(r.Context(), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, servers)
}

// ListPublic godoc
// GET /api/servers/public?limit=N
func (h *ServerHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil {
			pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	servers, err := h.serverService.ListPublic(r.Context(), limit)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, servers)
}

// Create godoc
// POST /api/servers
// Body: { "name": "...", "description": "...", "icon_url": "...", "privacy_level": "public" }
func (h *ServerHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}

	var req models.CreateServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	server, err := h.serverService.Create(r.Context(), user.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusCreated, server)
}

// Get godoc
// GET /api/servers/{serverId}
func (h *ServerHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}
	serverID, ok := serverIDFrom(w, r)
	if !ok {
		return
	}

	server, err := h.serverService.Get(r.Context(), serverID, user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, server)
}

// Update godoc
// PATCH /api/servers/{serverId}
// Owner only. Absent fields are left unchanged; "icon_url": "" clears the icon.
func (h *ServerHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}
	serverID, ok := serverIDFrom(w, r)
	if !ok {
		return
	}

	var req models.UpdateServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	server, err := h.serverService.Update(r.Context(), serverID, user.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, server)
}

// Delete godoc
// DELETE /api/servers/{serverId}
func (h *ServerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}
	serverID, ok := serverIDFrom(w, r)
	if !ok {
		return
	}

	if err := h.serverService.Delete(r.Context(), serverID, user.ID); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]string{"message": "server deleted"})
}

// Join godoc
// POST /api/servers/{serverId}/join
// Public servers only. Joining twice answers 200 with already_member set.
func (h *ServerHandler) Join(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}
	serverID, ok := pathID(w, r, "serverId")
	if !ok {
		return
	}

	res, err := h.serverService.Join(r.Context(), serverID, user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	status := http.StatusCreated
	if res.AlreadyMember {
		status = http.StatusOK
	}
	pkg.JSON(w, status, res)
}

// Leave godoc
// POST /api/servers/{serverId}/leave
func (h *ServerHandler) Leave(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}
	serverID, ok := serverIDFrom(w, r)
	if !ok {
		return
	}

	if err := h.serverService.Leave(r.Context(), serverID, user.ID); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]string{"message": "left server"})
}
