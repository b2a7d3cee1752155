package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg"
	"github.com/akinalp/corkboard/pkg/cache"
	"github.com/akinalp/corkboard/repository"
	"github.com/akinalp/corkboard/ws"
)

// ChannelService manages channels and resolves channel access.
type ChannelService interface {
	// Authorize returns the channel when userID is a member of its server.
	// A missing channel is pkg.ErrNotFound; a non-member gets
	// pkg.ErrForbidden.
	Authorize(ctx context.Context, channelID int64, userID string) (*models.Channel, error)

	// AuthorizeJoin is Authorize with the channel read from storage rather
	// than the cache. Subscriptions outlive a single request, so a join must
	// not be admitted on a cached entry for a channel deleted since.
	AuthorizeJoin(ctx context.Context, channelID int64, userID string) (*models.Channel, error)

	ListByServer(ctx context.Context, serverID int64, userID string) ([]models.Channel, error)
	Create(ctx context.Context, serverID int64, userID string, req *models.CreateChannelRequest) (*models.Channel, error)
	Update(ctx context.Context, serverID, channelID int64, userID string, req *models.UpdateChannelRequest) (*models.Channel, error)
	Delete(ctx context.Context, serverID, channelID int64, userID string) error

	// Forget evicts one cached channel, e.g. after another instance
	// deleted it.
	Forget(channelID int64)

	// ForgetServer evicts cached channels of a deleted server.
	ForgetServer(serverID int64)
}

type channelService struct {
	channelRepo repository.ChannelRepository
	gate        AuthorizationGate
	groups      ws.ChannelPublisher
	cache       *cache.TTLCache[int64, *models.Channel]
	log         *zap.Logger
}

// NewChannelService is the constructor. Channel lookups on the message path
// are served from channelCache.
func NewChannelService(
	channelRepo repository.ChannelRepository,
	gate AuthorizationGate,
	groups ws.ChannelPublisher,
	channelCache *cache.TTLCache[int64, *models.Channel],
	log *zap.Logger,
) ChannelService {
	return &channelService{
		channelRepo: channelRepo,
		gate:        gate,
		groups:      groups,
		cache:       channelCache,
		log:         log,
	}
}

func (s *channelService) get(ctx context.Context, channelID int64) (*models.Channel, error) {
	ch, err := s.cache.GetOrLoad(channelID, func() (*models.Channel, error) {
		return s.channelRepo.GetByID(ctx, channelID)
	})
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", pkg.ErrPersistence, err)
	}
	return ch, nil
}

func (s *channelService) Authorize(ctx context.Context, channelID int64, userID string) (*models.Channel, error) {
	ch, err := s.get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, PolicyServerMember, userID, ch.ServerID); err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *channelService) AuthorizeJoin(ctx context.Context, channelID int64, userID string) (*models.Channel, error) {
	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			s.cache.Delete(channelID)
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", pkg.ErrPersistence, err)
	}
	s.cache.Set(channelID, ch)

	if err := s.gate.Authorize(ctx, PolicyServerMember, userID, ch.ServerID); err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *channelService) ListByServer(ctx context.Context, serverID int64, userID string) ([]models.Channel, error) {
	if err := s.gate.Authorize(ctx, PolicyServerMember, userID, serverID); err != nil {
		return nil, err
	}

	channels, err := s.channelRepo.ListByServer(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrPersistence, err)
	}
	return channels, nil
}

func (s *channelService) Create(ctx context.Context, serverID int64, userID string, req *models.CreateChannelRequest) (*models.Channel, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}
	if err := s.gate.Authorize(ctx, PolicyServerModerator, userID, serverID); err != nil {
		return nil, err
	}

	ch := &models.Channel{ServerID: serverID, Name: req.Name}
	if err := s.channelRepo.Create(ctx, ch); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrPersistence, err)
	}

	s.log.Info("channel created",
		zap.Int64("server_id", serverID),
		zap.Int64("channel_id", ch.ID),
		zap.String("user_id", userID),
	)
	return ch, nil
}

// inServer loads a channel and checks it belongs to serverID.
func (s *channelService) inServer(ctx context.Context, serverID, channelID int64) (*models.Channel, error) {
	ch, err := s.get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch.ServerID != serverID {
		return nil, fmt.Errorf("%w: channel %d", pkg.ErrNotFound, channelID)
	}
	return ch, nil
}

func (s *channelService) Update(ctx context.Context, serverID, channelID int64, userID string, req *models.UpdateChannelRequest) (*models.Channel, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}
	if err := s.gate.Authorize(ctx, PolicyServerModerator, userID, serverID); err != nil {
		return nil, err
	}

	ch, err := s.inServer(ctx, serverID, channelID)
	if err != nil {
		return nil, err
	}

	updated := *ch
	updated.Name = req.Name
	if err := s.channelRepo.Update(ctx, &updated); err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			s.cache.Delete(channelID)
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", pkg.ErrPersistence, err)
	}

	s.cache.Set(channelID, &updated)
	return &updated, nil
}

func (s *channelService) Delete(ctx context.Context, serverID, channelID int64, userID string) error {
	if err := s.gate.Authorize(ctx, PolicyServerModerator, userID, serverID); err != nil {
		return err
	}
	if _, err := s.inServer(ctx, serverID, channelID); err != nil {
		return err
	}

	if err := s.channelRepo.Delete(ctx, channelID); err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			s.cache.Delete(channelID)
			return err
		}
		return fmt.Errorf("%w: %v", pkg.ErrPersistence, err)
	}

	s.cache.Delete(channelID)
	s.groups.DropChannel(channelID)

	s.log.Info("channel deleted",
		zap.Int64("server_id", serverID),
		zap.Int64("channel_id", channelID),
		zap.String("user_id", userID),
	)
	return nil
}

func (s *channelService) Forget(channelID int64) {
	s.cache.Delete(channelID)
}

func (s *channelService) ForgetServer(serverID int64) {
	s.cache.DeleteFunc(func(_ int64, ch *models.Channel) bool {
		return ch.ServerID == serverID
	})
}
