package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/corkboard/database"
	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg"
	"github.com/akinalp/corkboard/pkg/ratelimit"
	"github.com/akinalp/corkboard/repository"
)

// maxCodeAttempts bounds invite code generation on collisions.
const maxCodeAttempts = 5

// InviteService creates, lists, previews and redeems server invites.
type InviteService interface {
	Create(ctx context.Context, serverID int64, userID string, req *models.CreateInviteRequest) (*models.Invite, error)
	ListByServer(ctx context.Context, serverID int64, userID string) ([]models.Invite, error)
	Revoke(ctx context.Context, serverID, inviteID int64, userID string) error
	Preview(ctx context.Context, code string) (*models.InvitePreview, error)

	// Redeem joins userID to the invite's server. Consuming a one-time
	// invite and inserting the membership happen in one transaction, so of
	// several concurrent redemptions exactly one succeeds. Redeeming into a
	// server the user already belongs to is not an error and does not
	// consume the invite.
	Redeem(ctx context.Context, code, userID string) (*models.JoinResult, error)
}

type inviteService struct {
	db            *sql.DB
	inviteRepo    repository.InviteRepository
	serverRepo    repository.ServerRepository
	memberRepo    repository.MembershipRepository
	userRepo      repository.UserRepository
	gate          AuthorizationGate
	limiter       *ratelimit.WindowLimiter
	defaultExpiry time.Duration
	generateCode  func() (string, error)
	now           func() time.Time
	log           *zap.Logger
}

// NewInviteService is the constructor. defaultExpiry applies when a
// request does not choose one.
func NewInviteService(
	db *sql.DB,
	inviteRepo repository.InviteRepository,
	serverRepo repository.ServerRepository,
	memberRepo repository.MembershipRepository,
	userRepo repository.UserRepository,
	gate AuthorizationGate,
	limiter *ratelimit.WindowLimiter,
	defaultExpiry time.Duration,
	log *zap.Logger,
) InviteService {
	return &inviteService{
		db:            db,
		inviteRepo:    inviteRepo,
		serverRepo:    serverRepo,
		memberRepo:    memberRepo,
		userRepo:      userRepo,
		gate:          gate,
		limiter:       limiter,
		defaultExpiry: defaultExpiry,
		generateCode:  randomCode,
		now:           time.Now,
		log:           log,
	}
}

// randomCode returns 16 upper-case hex characters from crypto/rand.
func randomCode() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate invite code: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// authorizeInviter checks the caller's role against the server's privacy
// level.
func (s *inviteService) authorizeInviter(ctx context.Context, serverID int64, userID string) (*models.Server, error) {
	server, err := s.serverRepo.GetByID(ctx, serverID)
	if err != nil {
		return nil, storageErr(err)
	}

	role, err := s.gate.RoleOf(ctx, serverID, userID)
	if err != nil {
		return nil, err
	}

	required := server.PrivacyLevel.InviterRole()
	if !role.AtLeast(required) {
		return nil, fmt.Errorf("%w: %s role required to manage invites", pkg.ErrForbidden, required)
	}
	return server, nil
}

func (s *inviteService) Create(ctx context.Context, serverID int64, userID string, req *models.CreateInviteRequest) (*models.Invite, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}
	if _, err := s.authorizeInviter(ctx, serverID, userID); err != nil {
		return nil, err
	}

	if req.InvitedUserID != nil {
		if _, err := s.userRepo.GetByID(ctx, *req.InvitedUserID); err != nil {
			return nil, storageErr(err)
		}
		_, err := s.memberRepo.Get(ctx, serverID, *req.InvitedUserID)
		if err == nil {
			return nil, fmt.Errorf("%w: user is already a member", pkg.ErrConflict)
		}
		if !errors.Is(err, pkg.ErrNotFound) {
			return nil, storageErr(err)
		}
	}

	invite := &models.Invite{
		ServerID:      serverID,
		CreatedBy:     userID,
		InvitedUserID: req.InvitedUserID,
		OneTimeUse:    true,
	}
	if req.OneTimeUse != nil {
		invite.OneTimeUse = *req.OneTimeUse
	}

	expiry := s.defaultExpiry
	if req.ExpiresInMinutes != nil {
		expiry = time.Duration(*req.ExpiresInMinutes) * time.Minute
	}
	if expiry > 0 {
		expiresAt := s.now().Add(expiry).UTC().Truncate(time.Microsecond)
		invite.ExpiresAt = &expiresAt
	}

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.generateCode()
		if err != nil {
			return nil, err
		}
		invite.Code = code

		err = s.inviteRepo.Create(ctx, invite)
		if err == nil {
			s.log.Info("invite created",
				zap.Int64("server_id", serverID),
				zap.Int64("invite_id", invite.ID),
				zap.String("user_id", userID),
			)
			return invite, nil
		}
		if !errors.Is(err, pkg.ErrAlreadyExists) {
			return nil, storageErr(err)
		}
		s.log.Debug("invite code collision, retrying", zap.Int("attempt", attempt))
	}

	return nil, fmt.Errorf("%w: could not generate a unique invite code", pkg.ErrConflict)
}

func (s *inviteService) ListByServer(ctx context.Context, serverID int64, userID string) ([]models.Invite, error) {
	if _, err := s.authorizeInviter(ctx, serverID, userID); err != nil {
		return nil, err
	}

	invites, err := s.inviteRepo.ListByServer(ctx, serverID)
	if err != nil {
		return nil, storageErr(err)
	}
	return invites, nil
}

func (s *inviteService) Revoke(ctx context.Context, serverID, inviteID int64, userID string) error {
	if _, err := s.authorizeInviter(ctx, serverID, userID); err != nil {
		return err
	}
	if err := s.inviteRepo.Delete(ctx, serverID, inviteID); err != nil {
		return storageErr(err)
	}
	return nil
}

// usable rejects expired and consumed invites.
func (s *inviteService) usable(inv *models.Invite) error {
	if inv.ExpiredAt(s.now()) {
		return fmt.Errorf("%w: invite %s", pkg.ErrExpired, inv.Code)
	}
	if inv.Consumed() {
		return fmt.Errorf("%w: invite has already been used", pkg.ErrConflict)
	}
	return nil
}

func (s *inviteService) Preview(ctx context.Context, code string) (*models.InvitePreview, error) {
	inv, err := s.inviteRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, storageErr(err)
	}
	if err := s.usable(inv); err != nil {
		return nil, err
	}

	server, err := s.serverRepo.GetByID(ctx, inv.ServerID)
	if err != nil {
		return nil, storageErr(err)
	}
	count, err := s.memberRepo.CountByServer(ctx, inv.ServerID)
	if err != nil {
		return nil, storageErr(err)
	}

	return &models.InvitePreview{
		Code:        inv.Code,
		ServerID:    server.ID,
		ServerName:  server.Name,
		IconURL:     server.IconURL,
		MemberCount: count,
		ExpiresAt:   inv.ExpiresAt,
	}, nil
}

// errAlreadyMember rolls back a redemption that lost to an existing
// membership.
var errAlreadyMember = errors.New("already a member")

func (s *inviteService) Redeem(ctx context.Context, code, userID string) (*models.JoinResult, error) {
	if !s.limiter.Allow(userID) {
		return nil, fmt.Errorf("%w: too many invite attempts, try again in %ds",
			pkg.ErrTooManyRequests, s.limiter.RetryAfterSeconds(userID))
	}

	var (
		serverID   int64
		membership *models.Membership
	)
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		invites := repository.NewSQLiteInviteRepo(tx)
		members := repository.NewSQLiteMembershipRepo(tx)

		inv, err := invites.GetByCode(ctx, code)
		if err != nil {
			return err
		}
		serverID = inv.ServerID

		if inv.InvitedUserID != nil && *inv.InvitedUserID != userID {
			return fmt.Errorf("%w: invite is for another user", pkg.ErrForbidden)
		}

		existing, err := members.Get(ctx, inv.ServerID, userID)
		if err == nil {
			membership = existing
			return errAlreadyMember
		}
		if !errors.Is(err, pkg.ErrNotFound) {
			return err
		}

		if err := s.usable(inv); err != nil {
			return err
		}
		if err := invites.ConsumeUse(ctx, inv.ID); err != nil {
			return err
		}

		m := &models.Membership{ServerID: inv.ServerID, UserID: userID, Role: models.RoleMember, InviteID: &inv.ID}
		if err := members.Create(ctx, m); err != nil {
			if errors.Is(err, pkg.ErrAlreadyExists) {
				return errAlreadyMember
			}
			return err
		}
		membership = m
		return nil
	})

	switch {
	case errors.Is(err, errAlreadyMember):
		if membership == nil {
			if m, getErr := s.memberRepo.Get(ctx, serverID, userID); getErr == nil {
				membership = m
			}
		}
		return &models.JoinResult{ServerID: serverID, AlreadyMember: true, Membership: membership}, nil
	case err != nil:
		return nil, storageErr(err)
	}

	s.log.Info("invite redeemed",
		zap.Int64("server_id", serverID),
		zap.String("user_id", userID),
	)
	return &models.JoinResult{ServerID: serverID, Membership: membership}, nil
}
