package models

import (
	"time"
)

// GameRating is a community difficulty/enjoyment rating, one per
// (user, game), updated in place on resubmission.
type GameRating struct {
	ID        int64     `json:"id" db:"id"`
	SteamID   string    `json:"steam_id" db:"steam_id"`
	AppID     int64     `json:"appid" db:"appid"`
	Rating    int       `json:"rating" db:"rating"` // 1-5 stars
	Comment   *string   `json:"comment" db:"comment"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CommunityRating aggregates all ratings for a game.
type CommunityRating struct {
	AppID       int64        `json:"appid"`
	AvgRating   float64      `json:"avg_rating"`
	RatingCount int          `json:"rating_count"`
	Ratings     []GameRating `json:"ratings"`
}

// AchievementTip is a community hint for a single achievement.
type AchievementTip struct {
	ID         int64     `json:"id" db:"id"`
	SteamID    string    `json:"steam_id" db:"steam_id"`
	AppID      int64     `json:"appid" db:"appid"`
	APIName    string    `json:"apiname" db:"apiname"`
	Difficulty int       `json:"difficulty" db:"difficulty"` // 1-5
	Tip        string    `json:"tip" db:"tip"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
