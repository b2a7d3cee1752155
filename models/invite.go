package models

import (
	"fmt"
	"strings"
	"time"
)

// Invite is a redeemable code granting membership of one server.
//
// A one-time invite is consumed by its first successful redemption; a
// reusable invite only counts uses. InvitedUserID restricts redemption to
// a single user.
type Invite struct {
	ID            int64      `json:"id"`
	ServerID      int64      `json:"server_id"`
	CreatedBy     string     `json:"created_by"`
	InvitedUserID *string    `json:"invited_user_id"`
	Code          string     `json:"code"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
	OneTimeUse    bool       `json:"one_time_use"`
	Used          bool       `json:"used"`
	TimesUsed     int        `json:"times_used"`
}

// ExpiredAt reports whether the invite has expired at now.
func (i *Invite) ExpiredAt(now time.Time) bool {
	return i.ExpiresAt != nil && !now.Before(*i.ExpiresAt)
}

// Consumed reports whether a one-time invite has already been redeemed.
func (i *Invite) Consumed() bool {
	return i.OneTimeUse && i.Used
}

// InvitePreview is what a prospective member sees before redeeming.
type InvitePreview struct {
	Code        string     `json:"code"`
	ServerID    int64      `json:"server_id"`
	ServerName  string     `json:"server_name"`
	IconURL     *string    `json:"icon_url"`
	MemberCount int        `json:"member_count"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// CreateInviteRequest is the body of POST /api/servers/{serverId}/invites.
//
// ExpiresInMinutes: nil uses the configured default, 0 never expires.
// OneTimeUse: nil defaults to true.
type CreateInviteRequest struct {
	InvitedUserID    *string `json:"invited_user_id"`
	ExpiresInMinutes *int    `json:"expires_in_minutes"`
	OneTimeUse       *bool   `json:"one_time_use"`
}

// Validate checks ranges.
func (r *CreateInviteRequest) Validate() error {
	if r.ExpiresInMinutes != nil && *r.ExpiresInMinutes < 0 {
		return fmt.Errorf("expires_in_minutes cannot be negative")
	}
	if r.InvitedUserID != nil {
		trimmed := strings.TrimSpace(*r.InvitedUserID)
		if trimmed == "" {
			r.InvitedUserID = nil
		} else {
			r.InvitedUserID = &trimmed
		}
	}
	return nil
}
