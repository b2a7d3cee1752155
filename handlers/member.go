package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg"
	"github.com/akinalp/corkboard/services"
)

// MemberHandler serves the member list and moderation endpoints.
type MemberHandler struct {
	serverService services.ServerService
}

// NewMemberHandler is the constructor.
func NewMemberHandler(serverService services.ServerService) *MemberHandler {
	return &MemberHandler{serverService: serverService}
}

// List godoc
// GET /api/servers/{serverId}/members
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}
	serverID, ok := serverIDFrom(w, r)
	if !ok {
		return
	}

	members, err := h.serverService.ListMembers(r.Context(), serverID, user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, members)
}

// UpdateRole godoc
// PATCH /api/servers/{serverId}/members/{userId}
// Body: { "role": "moderator" }
func (h *MemberHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}
	serverID, ok := serverIDFrom(w, r)
	if !ok {
		return
	}

	var req models.UpdateMemberRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	member, err := h.serverService.UpdateMemberRole(r.Context(), serverID, user.ID, r.PathValue("userId"), req.Role)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, member)
}

// Remove godoc
// DELETE /api/servers/{serverId}/members/{userId}
func (h *MemberHandler) Remove(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}
	serverID, ok := serverIDFrom(w, r)
	if !ok {
		return
	}

	if err := h.serverService.RemoveMember(r.Context(), serverID, user.ID, r.PathValue("userId")); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]string{"message": "member removed"})
}
