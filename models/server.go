// Package models holds the domain types shared by every layer.
package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// PrivacyLevel controls who may join a server and who may invite.
type PrivacyLevel string

const (
	// PrivacyPublic: anyone may join directly; moderators and owners invite.
	PrivacyPublic PrivacyLevel = "public"
	// PrivacyModeratorInvite: join by invite only; moderators and owners invite.
	PrivacyModeratorInvite PrivacyLevel = "moderator_invite_private"
	// PrivacyOwnerInvite: join by invite only; only the owner invites.
	PrivacyOwnerInvite PrivacyLevel = "owner_invite_private"
)

// Valid reports whether p is a known privacy level.
func (p PrivacyLevel) Valid() bool {
	switch p {
	case PrivacyPublic, PrivacyModeratorInvite, PrivacyOwnerInvite:
		return true
	}
	return false
}

// InviterRole is the lowest role allowed to create invites at this level.
func (p PrivacyLevel) InviterRole() Role {
	if p == PrivacyOwnerInvite {
		return RoleOwner
	}
	return RoleModerator
}

// UnmarshalJSON rejects unknown levels at the API boundary.
func (p *PrivacyLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if !PrivacyLevel(s).Valid() {
		return fmt.Errorf("unknown privacy level %q", s)
	}
	*p = PrivacyLevel(s)
	return nil
}

// Validation limits for servers.
const (
	MaxServerNameLength        = 100
	MaxServerDescriptionLength = 1000
	MaxIconURLLength           = 2048
)

// Server is a community container. Channels, memberships and invites
// reference it by ServerID; there are no embedded collections.
type Server struct {
	ID            int64        `json:"id"`
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	IconURL       *string      `json:"icon_url"`
	OwnerID       string       `json:"owner_id"`
	PrivacyLevel  PrivacyLevel `json:"privacy_level"`
	CreatedAt     time.Time    `json:"created_at"`
	LastMessageAt *time.Time   `json:"last_message_at"`
}

// ServerWithRole is a server as seen by one member.
type ServerWithRole struct {
	Server
	Role Role `json:"role"`
}

// CreateServerRequest is the body of POST /api/servers.
type CreateServerRequest struct {
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	IconURL      *string      `json:"icon_url"`
	PrivacyLevel PrivacyLevel `json:"privacy_level"`
}

// Validate trims and checks the request. An empty privacy level defaults
// to public.
func (r *CreateServerRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if err := validateServerName(r.Name); err != nil {
		return err
	}
	if utf8.RuneCountInString(r.Description) > MaxServerDescriptionLength {
		return fmt.Errorf("description must be at most %d characters", MaxServerDescriptionLength)
	}
	if err := validateIconURL(r.IconURL); err != nil {
		return err
	}
	if r.PrivacyLevel == "" {
		r.PrivacyLevel = PrivacyPublic
	}
	if !r.PrivacyLevel.Valid() {
		return fmt.Errorf("unknown privacy level %q", r.PrivacyLevel)
	}
	return nil
}

// UpdateServerRequest is a partial update; nil fields are left unchanged.
type UpdateServerRequest struct {
	Name         *string       `json:"name"`
	Description  *string       `json:"description"`
	IconURL      *string       `json:"icon_url"`
	PrivacyLevel *PrivacyLevel `json:"privacy_level"`
}

// Validate checks the fields that are present.
func (r *UpdateServerRequest) Validate() error {
	if r.Name != nil {
		trimmed := strings.TrimSpace(*r.Name)
		r.Name = &trimmed
		if err := validateServerName(trimmed); err != nil {
			return err
		}
	}
	if r.Description != nil && utf8.RuneCountInString(*r.Description) > MaxServerDescriptionLength {
		return fmt.Errorf("description must be at most %d characters", MaxServerDescriptionLength)
	}
	if err := validateIconURL(r.IconURL); err != nil {
		return err
	}
	if r.PrivacyLevel != nil && !r.PrivacyLevel.Valid() {
		return fmt.Errorf("unknown privacy level %q", *r.PrivacyLevel)
	}
	return nil
}

// Apply copies the present fields onto s.
func (r *UpdateServerRequest) Apply(s *Server) {
	if r.Name != nil {
		s.Name = *r.Name
	}
	if r.Description != nil {
		s.Description = *r.Description
	}
	if r.IconURL != nil {
		if *r.IconURL == "" {
			s.IconURL = nil
		} else {
			icon := *r.IconURL
			s.IconURL = &icon
		}
	}
	if r.PrivacyLevel != nil {
		s.PrivacyLevel = *r.PrivacyLevel
	}
}

func validateServerName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < 1 || n > MaxServerNameLength {
		return fmt.Errorf("server name must be between 1 and %d characters", MaxServerNameLength)
	}
	return nil
}

// validateIconURL accepts nil, "" (clear) or an absolute http(s) URL.
func validateIconURL(icon *string) error {
	if icon == nil || *icon == "" {
		return nil
	}
	if len(*icon) > MaxIconURLLength {
		return fmt.Errorf("icon_url must be at most %d characters", MaxIconURLLength)
	}
	u, err := url.Parse(*icon)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("icon_url must be an absolute http(s) URL")
	}
	return nil
}
