package models

import (
	"time"
)

// AchievementSchema is static per-game metadata, shared by all users.
// Ord preserves the provider's declaration order.
type AchievementSchema struct {
	AppID       int64   `json:"appid" db:"appid"`
	APIName     string  `json:"apiname" db:"apiname"`
	DisplayName string  `json:"display_name" db:"display_name"`
	Description *string `json:"description" db:"description"`
	Icon        string  `json:"icon" db:"icon"`
	IconGray    string  `json:"icon_gray" db:"icon_gray"`
	Ord         int     `json:"-" db:"ord"`
}

// UserAchievement is per-user unlock state. Achieved never transitions back
// to false; Estimated marks an unlock time we supplied ourselves because the
// provider gave none.
type UserAchievement struct {
	SteamID    string     `json:"steam_id" db:"steam_id"`
	AppID      int64      `json:"appid" db:"appid"`
	APIName    string     `json:"apiname" db:"apiname"`
	Achieved   bool       `json:"achieved" db:"achieved"`
	UnlockTime *time.Time `json:"unlocktime" db:"unlocktime"`
	Estimated  bool       `json:"estimated" db:"estimated"`
}

// GameAchievement joins unlock state with schema metadata for display.
type GameAchievement struct {
	AppID       int64      `json:"appid" db:"appid"`
	APIName     string     `json:"apiname" db:"apiname"`
	Name        string     `json:"name" db:"name"`
	Description *string    `json:"description" db:"description"`
	Icon        string     `json:"icon" db:"icon"`
	IconGray    string     `json:"icon_gray" db:"icon_gray"`
	Achieved    bool       `json:"achieved" db:"achieved"`
	UnlockTime  *time.Time `json:"unlocktime" db:"unlocktime"`
}
