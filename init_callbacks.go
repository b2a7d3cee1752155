package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/ws"
)

// registerHubCallbacks connects the websocket ops to the services. The hub
// lives in ws and knows nothing about services; this is the only place the
// two meet.
func registerHubCallbacks(hub *ws.Hub, svcs *Services, log *zap.Logger) {
	hub.OnJoinChannel(func(ctx context.Context, userID string, channelID int64) error {
		_, err := svcs.Channel.AuthorizeJoin(ctx, channelID, userID)
		return err
	})

	hub.OnChannelGone(svcs.Channel.Forget)

	hub.OnSendMessage(func(ctx context.Context, userID string, channelID int64, text string) error {
		_, err := svcs.Message.Send(ctx, channelID, userID, text)
		return err
	})

	hub.OnLoadMessages(func(ctx context.Context, userID string, channelID int64, before *time.Time, limit int) ([]models.MessageDTO, error) {
		var (
			messages []models.Message
			err      error
		)
		if before == nil {
			messages, err = svcs.Message.GetRecent(ctx, channelID, userID, limit)
		} else {
			messages, err = svcs.Message.GetMessagesBefore(ctx, channelID, userID, *before, limit)
		}
		if err != nil {
			return nil, err
		}
		return models.ToDTOs(messages), nil
	})

	hub.OnDisconnect(func(userID string) {
		log.Debug("user has no live connections", zap.String("user_id", userID))
	})
}
