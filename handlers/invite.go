package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg"
	"github.com/akinalp/corkboard/services"
)

// InviteHandler serves invite management, preview and redemption.
//
// Routes:
//
//	GET    /api/servers/{serverId}/invites            → List
//	POST   /api/servers/{serverId}/invites            → Create
//	DELETE /api/servers/{serverId}/invites/{inviteId} → Revoke
//	GET    /api/invites/{code}                        → Preview
//	POST   /api/invites/{code}/redeem                 → Redeem
type InviteHandler struct {
	inviteService services.InviteService
}

// NewInviteHandler is the constructor.
func NewInviteHandler(inviteService services.InviteService) *InviteHandler {
	return &InviteHandler{inviteService: inviteService}
}

func (h *InviteHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}
	serverID, ok := serverIDFrom(w, r)
	if !ok {
		return
	}

	invites, err := h.inviteService.ListByServer(r.Context(), serverID, user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, invites)
}

// Create godoc
// Body (all optional): { "invited_user_id": "...", "expires_in_minutes": 60, "one_time_use": false }
func (h *InviteHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}
	serverID, ok := serverIDFrom(w, r)
	if !ok {
		return
	}

	var req models.CreateInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	invite, err := h.inviteService.Create(r.Context(), serverID, user.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusCreated, invite)
}

func (h *InviteHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}
	serverID, ok := serverIDFrom(w, r)
	if !ok {
		return
	}
	inviteID, ok := pathID(w, r, "inviteId")
	if !ok {
		return
	}

	if err := h.inviteService.Revoke(r.Context(), serverID, inviteID, user.ID); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]string{"message": "invite revoked"})
}

func (h *InviteHandler) Preview(w http.ResponseWriter, r *http.Request) {
	preview, err := h.inviteService.Preview(r.Context(), r.PathValue("code"))
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, preview)
}

// Redeem godoc
// POST /api/invites/{code}/redeem
// 201 with the new membership, or 200 with already_member when the caller
// was already in the server.
func (h *InviteHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}

	res, err := h.inviteService.Redeem(r.Context(), r.PathValue("code"), user.ID)
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
