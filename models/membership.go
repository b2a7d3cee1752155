package models

import "time"

// Membership links a user to a server with a role. (ServerID, UserID) is
// unique.
type Membership struct {
	ID       int64     `json:"id"`
	ServerID int64     `json:"server_id"`
	UserID   string    `json:"user_id"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
	InviteID *int64    `json:"invite_id,omitempty"`
}

// MemberWithUser is a membership joined with the user's names, used by the
// member list.
type MemberWithUser struct {
	Membership
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// JoinResult reports the outcome of a join or invite redemption. A repeat
// join is not an error: AlreadyMember is set and no row is added.
type JoinResult struct {
	ServerID      int64       `json:"server_id"`
	AlreadyMember bool        `json:"already_member"`
	Membership    *Membership `json:"membership"`
}

// UpdateMemberRoleRequest is the body of PATCH .../members/{userId}.
type UpdateMemberRoleRequest struct {
	Role Role `json:"role"`
}
