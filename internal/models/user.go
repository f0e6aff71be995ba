package models

import (
	"time"
)

// User is a Steam-identified account. Identity is established by the
// OpenID login flow; we never hold credentials for it.
type User struct {
	SteamID     string    `json:"steam_id" db:"steam_id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	AvatarURL   *string   `json:"avatar_url" db:"avatar_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	LastSeen    time.Time `json:"last_seen" db:"last_seen"`
}

// UserProfile is the subset of User exposed to websocket clients.
type UserProfile struct {
	SteamID     string  `json:"steam_id"`
	DisplayName string  `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

func (u *User) Profile() UserProfile {
	return UserProfile{
		SteamID:     u.SteamID,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}
