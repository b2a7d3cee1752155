package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg"
	"github.com/akinalp/corkboard/repository"
)

// AuthorizationGate answers role questions about one (server, user) pair.
// A missing membership is a false answer, not an error; a storage failure
// is reported as pkg.ErrPersistence.
type AuthorizationGate interface {
	IsMember(ctx context.Context, serverID int64, userID string) (bool, error)
	IsModeratorOrOwner(ctx context.Context, serverID int64, userID string) (bool, error)
	IsOwner(ctx context.Context, serverID int64, userID string) (bool, error)

	// RoleOf returns the caller's role, or pkg.ErrForbidden when they are
	// not a member.
	RoleOf(ctx context.Context, serverID int64, userID string) (models.Role, error)

	// Authorize evaluates a named policy and turns a false answer into
	// pkg.ErrForbidden.
	Authorize(ctx context.Context, policy Policy, userID string, serverID int64) error
}

// Policy names an authorization rule.
type Policy string

const (
	PolicyServerMember    Policy = "server.member"
	PolicyServerModerator Policy = "server.moderator"
	PolicyServerOwner     Policy = "server.owner"
)

// PolicyFunc decides a policy for userID in serverID.
type PolicyFunc func(ctx context.Context, gate AuthorizationGate, userID string, serverID int64) (bool, error)

var policies = map[Policy]PolicyFunc{
	PolicyServerMember: func(ctx context.Context, g AuthorizationGate, userID string, serverID int64) (bool, error) {
		return g.IsMember(ctx, serverID, userID)
	},
	PolicyServerModerator: func(ctx context.Context, g AuthorizationGate, userID string, serverID int64) (bool, error) {
		return g.IsModeratorOrOwner(ctx, serverID, userID)
	},
	PolicyServerOwner: func(ctx context.Context, g AuthorizationGate, userID string, serverID int64) (bool, error) {
		return g.IsOwner(ctx, serverID, userID)
	},
}

// LookupPolicy returns the rule registered under name.
func LookupPolicy(name Policy) (PolicyFunc, bool) {
	fn, ok := policies[name]
	return fn, ok
}

type authorizationGate struct {
	memberRepo repository.MembershipRepository
}

// NewAuthorizationGate is the constructor.
func NewAuthorizationGate(memberRepo repository.MembershipRepository) AuthorizationGate {
	return &authorizationGate{memberRepo: memberRepo}
}

// role returns ("", nil) for a non-member.
func (g *authorizationGate) role(ctx context.Context, serverID int64, userID string) (models.Role, error) {
	m, err := g.memberRepo.Get(ctx, serverID, userID)
	if errors.Is(err, pkg.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", pkg.ErrPersistence, err)
	}
	return m.Role, nil
}

func (g *authorizationGate) atLeast(ctx context.Context, serverID int64, userID string, min models.Role) (bool, error) {
	role, err := g.role(ctx, serverID, userID)
	if err != nil {
		return false, err
	}
	return role.AtLeast(min), nil
}

func (g *authorizationGate) IsMember(ctx context.Context, serverID int64, userID string) (bool, error) {
	return g.atLeast(ctx, serverID, userID, models.RoleMember)
}

func (g *authorizationGate) IsModeratorOrOwner(ctx context.Context, serverID int64, userID string) (bool, error) {
	return g.atLeast(ctx, serverID, userID, models.RoleModerator)
}

func (g *authorizationGate) IsOwner(ctx context.Context, serverID int64, userID string) (bool, error) {
	return g.atLeast(ctx, serverID, userID, models.RoleOwner)
}

func (g *authorizationGate) RoleOf(ctx context.Context, serverID int64, userID string) (models.Role, error) {
	role, err := g.role(ctx, serverID, userID)
	if err != nil {
		return "", err
	}
	if !role.Valid() {
		return "", fmt.Errorf("%w: not a member of server %d", pkg.ErrForbidden, serverID)
	}
	return role, nil
}

func (g *authorizationGate) Authorize(ctx context.Context, policy Policy, userID string, serverID int64) error {
	fn, ok := LookupPolicy(policy)
	if !ok {
		return fmt.Errorf("%w: unknown policy %q", pkg.ErrInternal, policy)
	}

	allowed, err := fn(ctx, g, userID, serverID)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: %s required for server %d", pkg.ErrForbidden, policy, serverID)
	}
	return nil
}
