package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxChannelNameLength bounds channel names.
const MaxChannelNameLength = 100

// DefaultChannelName is created together with every new server.
const DefaultChannelName = "general"

// Channel is a text room inside a server.
type Channel struct {
	ID        int64     `json:"id"`
	ServerID  int64     `json:"server_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateChannelRequest is the body of POST /api/servers/{serverId}/channels.
type CreateChannelRequest struct {
	Name string `json:"name"`
}

// Validate normalises the name: trimmed, lower-case, spaces become dashes.
func (r *CreateChannelRequest) Validate() error {
	name, err := normaliseChannelName(r.Name)
	if err != nil {
		return err
	}
	r.Name = name
	return nil
}

// UpdateChannelRequest renames a channel.
type UpdateChannelRequest struct {
	Name string `json:"name"`
}

// Validate applies the same rules as creation.
func (r *UpdateChannelRequest) Validate() error {
	name, err := normaliseChannelName(r.Name)
	if err != nil {
		return err
	}
	r.Name = name
	return nil
}

func normaliseChannelName(raw string) (string, error) {
	name := strings.ToLower(strings.Join(strings.Fields(raw), "-"))
	n := utf8.RuneCountInString(name)
	if n < 1 || n > MaxChannelNameLength {
		return "", fmt.Errorf("channel name must be between 1 and %d characters", MaxChannelNameLength)
	}
	return name, nil
}
