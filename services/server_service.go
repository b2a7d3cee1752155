package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/akinalp/corkboard/database"
	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg"
	"github.com/akinalp/corkboard/repository"
	"github.com/akinalp/corkboard/ws"
)

// MaxPublicServers caps the public directory listing.
const MaxPublicServers = 100

// ServerService manages servers and their memberships.
type ServerService interface {
	// Create inserts the server, the caller's owner membership and the
	// default channel in one transaction.
	Create(ctx context.Context, userID string, req *models.CreateServerRequest) (*models.ServerWithRole, error)
	Get(ctx context.Context, serverID int64, userID string) (*models.ServerWithRole, error)
	ListMine(ctx context.Context, userID string) ([]models.ServerWithRole, error)
	ListPublic(ctx context.Context, limit int) ([]models.Server, error)
	Update(ctx context.Context, serverID int64, userID string, req *models.UpdateServerRequest) (*models.Server, error)
	Delete(ctx context.Context, serverID int64, userID string) error

	// Join adds the caller to a public server. Joining twice is not an
	// error; the result reports AlreadyMember.
	Join(ctx context.Context, serverID int64, userID string) (*models.JoinResult, error)
	Leave(ctx context.Context, serverID int64, userID string) error

	ListMembers(ctx context.Context, serverID int64, userID string) ([]models.MemberWithUser, error)
	UpdateMemberRole(ctx context.Context, serverID int64, actorID, targetID string, role models.Role) (*models.Membership, error)
	RemoveMember(ctx context.Context, serverID int64, actorID, targetID string) error
}

type serverService struct {
	db          *sql.DB
	serverRepo  repository.ServerRepository
	memberRepo  repository.MembershipRepository
	channelRepo repository.ChannelRepository
	gate        AuthorizationGate
	channels    ChannelService
	groups      ws.ChannelPublisher
	log         *zap.Logger
}

// NewServerService is the constructor.
func NewServerService(
	db *sql.DB,
	serverRepo repository.ServerRepository,
	memberRepo repository.MembershipRepository,
	channelRepo repository.ChannelRepository,
	gate AuthorizationGate,
	channels ChannelService,
	groups ws.ChannelPublisher,
	log *zap.Logger,
) ServerService {
	return &serverService{
		db:          db,
		serverRepo:  serverRepo,
		memberRepo:  memberRepo,
		channelRepo: channelRepo,
		gate:        gate,
		channels:    channels,
		groups:      groups,
		log:         log,
	}
}

func (s *serverService) Create(ctx context.Context, userID string, req *models.CreateServerRequest) (*models.ServerWithRole, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}

	server := &models.Server{
		Name:         req.Name,
		Description:  req.Description,
		OwnerID:      userID,
		PrivacyLevel: req.PrivacyLevel,
	}
	if req.IconURL != nil && *req.IconURL != "" {
		server.IconURL = req.IconURL
	}

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := repository.NewSQLiteServerRepo(tx).Create(ctx, server); err != nil {
			return err
		}
		owner := &models.Membership{ServerID: server.ID, UserID: userID, Role: models.RoleOwner}
		if err := repository.NewSQLiteMembershipRepo(tx).Create(ctx, owner); err != nil {
			return err
		}
		general := &models.Channel{ServerID: server.ID, Name: models.DefaultChannelName}
		return repository.NewSQLiteChannelRepo(tx).Create(ctx, general)
	})
	if err != nil {
		return nil, storageErr(err)
	}

	s.log.Info("server created", zap.Int64("server_id", server.ID), zap.String("owner_id", userID))
	return &models.ServerWithRole{Server: *server, Role: models.RoleOwner}, nil
}

func (s *serverService) Get(ctx context.Context, serverID int64, userID string) (*models.ServerWithRole, error) {
	server, err := s.serverRepo.GetByID(ctx, serverID)
	if err != nil {
		return nil, storageErr(err)
	}
	role, err := s.gate.RoleOf(ctx, serverID, userID)
	if err != nil {
		return nil, err
	}
	return &models.ServerWithRole{Server: *server, Role: role}, nil
}

func (s *serverService) ListMine(ctx context.Context, userID string) ([]models.ServerWithRole, error) {
	servers, err := s.serverRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	return servers, nil
}

func (s *serverService) ListPublic(ctx context.Context, limit int) ([]models.Server, error) {
	if limit <= 0 || limit > MaxPublicServers {
		limit = MaxPublicServers
	}
	servers, err := s.serverRepo.ListPublic(ctx, limit)
	if err != nil {
		return nil, storageErr(err)
	}
	return servers, nil
}

func (s *serverService) Update(ctx context.Context, serverID int64, userID string, req *models.UpdateServerRequest) (*models.Server, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}
	if err := s.gate.Authorize(ctx, PolicyServerOwner, userID, serverID); err != nil {
		return nil, err
	}

	server, err := s.serverRepo.GetByID(ctx, serverID)
	if err != nil {
		return nil, storageErr(err)
	}
	req.Apply(server)
	if err := s.serverRepo.Update(ctx, server); err != nil {
		return nil, storageErr(err)
	}
	return server, nil
}

func (s *serverService) Delete(ctx context.Context, serverID int64, userID string) error {
	if err := s.gate.Authorize(ctx, PolicyServerOwner, userID, serverID); err != nil {
		return err
	}

	channels, err := s.channelRepo.ListByServer(ctx, serverID)
	if err != nil {
		return storageErr(err)
	}
	if err := s.serverRepo.Delete(ctx, serverID); err != nil {
		return storageErr(err)
	}

	s.channels.ForgetServer(serverID)
	for _, ch := range channels {
		s.groups.DropChannel(ch.ID)
	}

	s.log.Info("server deleted", zap.Int64("server_id", serverID), zap.String("user_id", userID))
	return nil
}

func (s *serverService) Join(ctx context.Context, serverID int64, userID string) (*models.JoinResult, error) {
	server, err := s.serverRepo.GetByID(ctx, serverID)
	if err != nil {
		return nil, storageErr(err)
	}

	existing, err := s.memberRepo.Get(ctx, serverID, userID)
	if err == nil {
		return &models.JoinResult{ServerID: serverID, AlreadyMember: true, Membership: existing}, nil
	}
	if !errors.Is(err, pkg.ErrNotFound) {
		return nil, storageErr(err)
	}

	if server.PrivacyLevel != models.PrivacyPublic {
		return nil, fmt.Errorf("%w: server is invite only", pkg.ErrForbidden)
	}

	m := &models.Membership{ServerID: serverID, UserID: userID, Role: models.RoleMember}
	if err := s.memberRepo.Create(ctx, m); err != nil {
		if errors.Is(err, pkg.ErrAlreadyExists) {
			// Lost a race with a concurrent join of the same user.
			existing, getErr := s.memberRepo.Get(ctx, serverID, userID)
			if getErr != nil {
				s.log.Warn("failed to load membership after duplicate join",
					zap.Int64("server_id", serverID),
					zap.String("user_id", userID),
					zap.Error(getErr),
				)
			}
			return &models.JoinResult{ServerID: serverID, AlreadyMember: true, Membership: existing}, nil
		}
		return nil, storageErr(err)
	}

	s.log.Info("member joined", zap.Int64("server_id", serverID), zap.String("user_id", userID))
	return &models.JoinResult{ServerID: serverID, Membership: m}, nil
}

func (s *serverService) Leave(ctx context.Context, serverID int64, userID string) error {
	role, err := s.gate.RoleOf(ctx, serverID, userID)
	if err != nil {
		return err
	}
	if role == models.RoleOwner {
		return fmt.Errorf("%w: the owner cannot leave their own server", pkg.ErrConflict)
	}

	if err := s.memberRepo.Delete(ctx, serverID, userID); err != nil {
		return storageErr(err)
	}
	s.unsubscribe(ctx, serverID, userID)

	s.log.Info("member left", zap.Int64("server_id", serverID), zap.String("user_id", userID))
	return nil
}

// unsubscribe takes the user's live connections out of the server's
// channel groups.
func (s *serverService) unsubscribe(ctx context.Context, serverID int64, userID string) {
	channels, err := s.channelRepo.ListByServer(ctx, serverID)
	if err != nil {
		s.log.Warn("failed to list channels for unsubscribe", zap.Int64("server_id", serverID), zap.Error(err))
		return
	}
	ids := make([]int64, 0, len(channels))
	for _, ch := range channels {
		ids = append(ids, ch.ID)
	}
	s.groups.RemoveUserFromChannels(userID, ids)
}

func (s *serverService) ListMembers(ctx context.Context, serverID int64, userID string) ([]models.MemberWithUser, error) {
	if err := s.gate.Authorize(ctx, PolicyServerMember, userID, serverID); err != nil {
		return nil, err
	}
	members, err := s.memberRepo.ListByServer(ctx, serverID)
	if err != nil {
		return nil, storageErr(err)
	}
	return members, nil
}

func (s *serverService) UpdateMemberRole(ctx context.Context, serverID int64, actorID, targetID string, role models.Role) (*models.Membership, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", pkg.ErrBadRequest, role)
	}
	if err := s.gate.Authorize(ctx, PolicyServerOwner, actorID, serverID); err != nil {
		return nil, err
	}
	if role == models.RoleOwner {
		return nil, fmt.Errorf("%w: ownership cannot be granted", pkg.ErrForbidden)
	}

	target, err := s.memberRepo.Get(ctx, serverID, targetID)
	if err != nil {
		return nil, storageErr(err)
	}
	if target.Role == models.RoleOwner {
		return nil, fmt.Errorf("%w: the owner's role cannot change", pkg.ErrForbidden)
	}

	if err := s.memberRepo.UpdateRole(ctx, serverID, targetID, role); err != nil {
		return nil, storageErr(err)
	}
	target.Role = role
	return target, nil
}

func (s *serverService) RemoveMember(ctx context.Context, serverID int64, actorID, targetID string) error {
	if actorID == targetID {
		return fmt.Errorf("%w: use leave to remove yourself", pkg.ErrBadRequest)
	}

	actorRole, err := s.gate.RoleOf(ctx, serverID, actorID)
	if err != nil {
		return err
	}
	if !actorRole.AtLeast(models.RoleModerator) {
		return fmt.Errorf("%w: moderator role required", pkg.ErrForbidden)
	}

	target, err := s.memberRepo.Get(ctx, serverID, targetID)
	if err != nil {
		return storageErr(err)
	}
	if actorRole.Compare(target.Role) <= 0 {
		return fmt.Errorf("%w: cannot remove a %s", pkg.ErrForbidden, target.Role)
	}

	if err := s.memberRepo.Delete(ctx, serverID, targetID); err != nil {
		return storageErr(err)
	}
	s.unsubscribe(ctx, serverID, targetID)

	s.log.Info("member removed",
		zap.Int64("server_id", serverID),
		zap.String("user_id", targetID),
		zap.String("by", actorID),
	)
	return nil
}
