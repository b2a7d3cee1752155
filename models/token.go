package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims is the access-token payload. The subject identifies the user;
// the name claims refresh the local user row on every connection.
type TokenClaims struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	jwt.RegisteredClaims
}

// User converts the claims into the local read model.
func (c *TokenClaims) User() *User {
	display := c.DisplayName
	if display == "" {
		display = c.Username
	}
	return &User{ID: c.UserID, Username: c.Username, DisplayName: display}
}
