package domain

import (
	"strings"
	"time"
)

// User mirrors the platform user record. The chat core only reads the
// display fields and owns the is_online / last_seen transitions.
type User struct {
	ID        string     `json:"id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Avatar    string     `json:"avatar,omitempty"`
	Role      string     `json:"role,omitempty"`
	IsOnline  bool       `json:"is_online"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
}

// DisplayName joins the name fields for outbound payloads.
func (u *User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// PresenceStatus answer for a get_user_status query.
type PresenceStatus struct {
	UserID   string     `json:"user_id"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}
