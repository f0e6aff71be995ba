package models

import (
	"time"
)

// RunHistory records one completed scan and the library size it saw.
type RunHistory struct {
	ID         int64     `json:"id" db:"id"`
	SteamID    string    `json:"steam_id" db:"steam_id"`
	RunAt      time.Time `json:"run_at" db:"run_at"`
	TotalGames int       `json:"total_games" db:"total_games"`
}

// HistorySnapshot is the append-only per-scan aggregate used for trend
// queries. AvgCompletionPercent averages unlocked/total over games with at
// least one achievement; games with zero or unknown totals are excluded.
type HistorySnapshot struct {
	ID                    int64     `json:"id" db:"id"`
	SteamID               string    `json:"steam_id" db:"steam_id"`
	RecordedAt            time.Time `json:"recorded_at" db:"recorded_at"`
	TotalGames            int       `json:"total_games" db:"total_games"`
	TotalAchievements     int       `json:"total_achievements" db:"total_achievements"`
	UnlockedAchievements  int       `json:"unlocked_achievements" db:"unlocked_achievements"`
	GamesWithAchievements int       `json:"games_with_achievements" db:"games_with_achievements"`
	AvgCompletionPercent  float64   `json:"avg_completion_percent" db:"avg_completion_percent"`
	FailedGames           int       `json:"failed_games" db:"failed_games"`
}
