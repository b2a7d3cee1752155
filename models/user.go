package models

import "time"

// User is the local read model of an identity issued elsewhere. It exists
// so messages can carry a display name; no credentials are stored.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}
