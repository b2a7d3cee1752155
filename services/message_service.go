package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/corkboard/events"
	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg"
	"github.com/akinalp/corkboard/pkg/ratelimit"
	"github.com/akinalp/corkboard/repository"
	"github.com/akinalp/corkboard/ws"
)

// Backfill page sizes.
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// MessageService is the broadcast router and the backfill reader.
type MessageService interface {
	// Send validates, persists and fans out one message. A persistence
	// failure is returned as pkg.ErrPersistence and nothing is broadcast.
	Send(ctx context.Context, channelID int64, userID, text string) (*models.Message, error)

	// GetRecent returns the newest page of the channel, oldest first.
	GetRecent(ctx context.Context, channelID int64, userID string, limit int) ([]models.Message, error)

	// GetMessagesBefore returns the page strictly older than before, oldest
	// first. An empty page means the history is exhausted.
	GetMessagesBefore(ctx context.Context, channelID int64, userID string, before time.Time, limit int) ([]models.Message, error)

	// Flush waits for in-flight event publications.
	Flush()
}

type messageService struct {
	messageRepo    repository.MessageRepository
	serverRepo     repository.ServerRepository
	userRepo       repository.UserRepository
	channels       ChannelService
	publisher      ws.ChannelPublisher
	sink           events.Sink
	limiter        *ratelimit.MessageRateLimiter
	persistTimeout time.Duration
	eventTimeout   time.Duration
	log            *zap.Logger
	inflight       sync.WaitGroup
}

// NewMessageService is the constructor.
//
// persistTimeout bounds the write, which runs detached from the caller's
// context so a disconnect cannot abort it. eventTimeout bounds the event
// sink publication.
func NewMessageService(
	messageRepo repository.MessageRepository,
	serverRepo repository.ServerRepository,
	userRepo repository.UserRepository,
	channels ChannelService,
	publisher ws.ChannelPublisher,
	sink events.Sink,
	limiter *ratelimit.MessageRateLimiter,
	persistTimeout, eventTimeout time.Duration,
	log *zap.Logger,
) MessageService {
	return &messageService{
		messageRepo:    messageRepo,
		serverRepo:     serverRepo,
		userRepo:       userRepo,
		channels:       channels,
		publisher:      publisher,
		sink:           sink,
		limiter:        limiter,
		persistTimeout: persistTimeout,
		eventTimeout:   eventTimeout,
		log:            log,
	}
}

func (s *messageService) Send(ctx context.Context, channelID int64, userID, text string) (*models.Message, error) {
	if err := models.ValidateMessageText(text); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}

	if !s.limiter.Allow(userID) {
		return nil, fmt.Errorf("%w: slow down, try again in %ds",
			pkg.ErrTooManyRequests, s.limiter.CooldownSeconds(userID))
	}

	// Membership is checked on every send, never taken from the
	// connection's group state.
	ch, err := s.channels.Authorize(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}

	sender, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown sender", pkg.ErrForbidden)
		}
		return nil, fmt.Errorf("%w: %v", pkg.ErrPersistence, err)
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()

	msg := &models.Message{
		ChannelID:         channelID,
		UserID:            userID,
		Content:           text,
		SenderDisplayName: sender.DisplayName,
	}
	if err := s.messageRepo.Create(persistCtx, msg); err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			s.channels.Forget(channelID)
			return nil, err
		}
		s.log.Error("failed to persist message",
			zap.Int64("channel_id", channelID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", pkg.ErrPersistence, err)
	}

	if err := s.serverRepo.TouchLastMessage(persistCtx, ch.ServerID, msg.CreatedAt); err != nil {
		s.log.Warn("failed to update server last_message_at",
			zap.Int64("server_id", ch.ServerID),
			zap.Error(err),
		)
	}

	s.publisher.PublishToChannel(channelID, ws.Event{
		Op:   ws.OpReceiveMessage,
		Data: ws.ReceiveMessageData{ChannelID: channelID, MessageDTO: msg.ToDTO()},
	})

	s.publishEvent(events.MessageCreated{
		MessageID:         msg.ID,
		ServerID:          ch.ServerID,
		ChannelID:         channelID,
		UserID:            userID,
		SenderDisplayName: msg.SenderDisplayName,
		Text:              msg.Content,
		Timestamp:         msg.CreatedAt,
	})

	return msg, nil
}

func (s *messageService) publishEvent(evt events.MessageCreated) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.eventTimeout)
		defer cancel()

		if err := s.sink.MessageCreated(ctx, evt); err != nil {
			s.log.Warn("failed to publish message event",
				zap.Int64("message_id", evt.MessageID),
				zap.Error(err),
			)
		}
	}()
}

func (s *messageService) Flush() {
	s.inflight.Wait()
}

func (s *messageService) GetRecent(ctx context.Context, channelID int64, userID string, limit int) ([]models.Message, error) {
	if _, err := s.channels.Authorize(ctx, channelID, userID); err != nil {
		return nil, err
	}

	messages, err := s.messageRepo.GetRecent(ctx, channelID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrPersistence, err)
	}
	return messages, nil
}

func (s *messageService) GetMessagesBefore(ctx context.Context, channelID int64, userID string, before time.Time, limit int) ([]models.Message, error) {
	if before.IsZero() {
		return nil, fmt.Errorf("%w: before is required", pkg.ErrBadRequest)
	}
	if _, err := s.channels.Authorize(ctx, channelID, userID); err != nil {
		return nil, err
	}

	messages, err := s.messageRepo.GetBefore(ctx, channelID, before, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrPersistence, err)
	}
	return messages, nil
}

// clampLimit applies the default page size and caps it.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
