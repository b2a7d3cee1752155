package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg"
	"github.com/akinalp/corkboard/services"
)

// MessageHandler serves channel history and the HTTP send path.
type MessageHandler struct {
	messageService services.MessageService
}

// NewMessageHandler is the constructor.
func NewMessageHandler(messageService services.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// List godoc
// GET /api/channels/{channelId}/messages?before=RFC3339&limit=50
//
// Without before, the newest page. With before, the page strictly older
// than that timestamp. Pages are oldest first; an empty page ends the
// history.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}
	channelID, ok := pathID(w, r, "channelId")
	if !ok {
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil {
			pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	var (
		messages []models.Message
		err      error
	)
	if b := r.URL.Query().Get("before"); b != "" {
		before, parseErr := time.Parse(time.RFC3339Nano, b)
		if parseErr != nil {
			pkg.ErrorWithMessage(w, http.StatusBadRequest, "before must be an RFC 3339 timestamp")
			return
		}
		messages, err = h.messageService.GetMessagesBefore(r.Context(), channelID, user.ID, before, limit)
	} else {
		messages, err = h.messageService.GetRecent(r.Context(), channelID, user.ID, limit)
	}
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, models.ToDTOs(messages))
}

// Create godoc
// POST /api/channels/{channelId}/messages
// Body: { "text": "..." }
// Same path as the websocket send_message op: the group receives
// receive_message.
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}
	channelID, ok := pathID(w, r, "channelId")
	if !ok {
		return
	}

	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.messageService.Send(r.Context(), channelID, user.ID, req.Text)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusCreated, msg.ToDTO())
}
