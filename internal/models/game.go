package models

import (
	"time"
)

// Game is the per-user library entry. Achievement counts are nil until the
// first successful scan of the game.
type Game struct {
	SteamID              string     `json:"steam_id" db:"steam_id"`
	AppID                int64      `json:"appid" db:"appid"`
	Name                 string     `json:"name" db:"name"`
	PlaytimeForever      int64      `json:"playtime_forever" db:"playtime_forever"` // minutes
	RtimeLastPlayed      *int64     `json:"rtime_last_played" db:"rtime_last_played"`
	ImgIconURL           *string    `json:"img_icon_url" db:"img_icon_url"`
	AddedAt              time.Time  `json:"added_at" db:"added_at"`
	AchievementsTotal    *int       `json:"achievements_total" db:"achievements_total"`
	AchievementsUnlocked *int       `json:"achievements_unlocked" db:"achievements_unlocked"`
	LastSync             *time.Time `json:"last_sync" db:"last_sync"`
}

// CompletionPercent returns unlocked/total, or nil for games with no
// achievements or not yet scanned. Those games are excluded from averages.
func (g *Game) CompletionPercent() *float64 {
	if g.AchievementsTotal == nil || g.AchievementsUnlocked == nil || *g.AchievementsTotal <= 0 {
		return nil
	}
	pct := float64(*g.AchievementsUnlocked) / float64(*g.AchievementsTotal) * 100.0
	return &pct
}
