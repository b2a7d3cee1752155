package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg"
	"github.com/akinalp/corkboard/services"
)

// ChannelHandler serves channel CRUD under a server.
type ChannelHandler struct {
	channelService services.ChannelService
}

// NewChannelHandler is the constructor.
func NewChannelHandler(channelService services.ChannelService) *ChannelHandler {
	return &ChannelHandler{channelService: channelService}
}

// List godoc
// GET /api/servers/{serverId}/channels
func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}
	serverID, ok := serverIDFrom(w, r)
	if !ok {
		return
	}

	channels, err := h.channelService.ListByServer(r.Context(), serverID, user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, channels)
}

// Create godoc
// POST /api/servers/{serverId}/channels
// Body: { "name": "homework" }
func (h *ChannelHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}
	serverID, ok := serverIDFrom(w, r)
	if !ok {
		return
	}

	var req models.CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	channel, err := h.channelService.Create(r.Context(), serverID, user.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusCreated, channel)
}

// Update godoc
// PATCH /api/servers/{serverId}/channels/{channelId}
func (h *ChannelHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}
	serverID, ok := serverIDFrom(w, r)
	if !ok {
		return
	}
	channelID, ok := pathID(w, r, "channelId")
	if !ok {
		return
	}

	var req models.UpdateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	channel, err := h.channelService.Update(r.Context(), serverID, channelID, user.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, channel)
}

// Delete godoc
// DELETE /api/servers/{serverId}/channels/{channelId}
// Connected clients in the channel receive channel_delete.
func (h *ChannelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}
	serverID, ok := serverIDFrom(w, r)
	if !ok {
		return
	}
	channelID, ok := pathID(w, r, "channelId")
	if !ok {
		return
	}

	if err := h.channelService.Delete(r.Context(), serverID, channelID, user.ID); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]string{"message": "channel deleted"})
}
