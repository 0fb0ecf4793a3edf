package types

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Principal is the authenticated identity bound to a session. It is
// supplied by the platform's identity provider at admission time and
// trusted as-is; it does not change for the lifetime of a connection.
type Principal struct {
	Id       int64  `json:"id"`
	Username string `json:"username"`
	Nickname string `json:"nickname,omitempty"`
	Color    string `json:"color,omitempty"`
	Badge    string `json:"badge,omitempty"`
	Role     string `json:"role,omitempty"`
}

// DisplayName returns the nickname, falling back to the username.
func (p Principal) DisplayName() string {
	if p.Nickname != "" {
		return p.Nickname
	}
	return p.Username
}

// IsAdmin reports whether the principal carries the admin role.
func IsAdmin(p Principal) bool {
	return p.Role == RoleAdmin
}

// Room is a named broadcast scope. Rooms are created and administered by
// the platform's directory; the chat core only reads them.
type Room struct {
	Id          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Message is one persisted chat message. Author display fields are a
// snapshot taken at append time; messages are immutable once created.
type Message struct {
	Id        int64     `json:"id"`
	RoomId    int64     `json:"room_id"`
	UserId    int64     `json:"user_id"`
	Content   string    `json:"content"`
	Username  string    `json:"username"`
	Nickname  string    `json:"nickname"`
	Color     string    `json:"color,omitempty"`
	Badge     string    `json:"badge,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// UserSummary is the display-relevant slice of a principal reported by
// presence queries.
type UserSummary struct {
	Id       int64  `json:"id"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Color    string `json:"color,omitempty"`
	Badge    string `json:"badge,omitempty"`
}

func Summary(p Principal) UserSummary {
	return UserSummary{
		Id:       p.Id,
		Username: p.Username,
		Nickname: p.DisplayName(),
		Color:    p.Color,
		Badge:    p.Badge,
	}
}
