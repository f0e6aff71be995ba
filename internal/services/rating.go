package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/overachiever/overachiever-web/internal/database"
	"github.com/overachiever/overachiever-web/internal/models"
)

var ErrInvalidRating = errors.New("rating must be between 1 and 5")

// RatingService handles the community surface: game ratings and achievement
// tips. Ratings are idempotent per (user, game) via upsert.
type RatingService struct {
	db *database.DB
}

func NewRatingService(db *database.DB) *RatingService {
	return &RatingService{db: db}
}

// UpsertRating records or replaces the user's rating for a game
func (s *RatingService) UpsertRating(steamID string, appID int64, rating int, comment *string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO game_ratings (steam_id, appid, rating, comment, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(steam_id, appid) DO UPDATE SET
			rating = excluded.rating,
			comment = excluded.comment,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.Exec(query, steamID, appID, rating, comment, now, now); err != nil {
		return fmt.Errorf("failed to upsert rating: %w", err)
	}
	return nil
}

// GetCommunityRating returns all ratings for a game with the aggregate
func (s *RatingService) GetCommunityRating(appID int64) (*models.CommunityRating, error) {
	var ratings []models.GameRating
	query := `
		SELECT id, steam_id, appid, rating, comment, created_at, updated_at
		FROM game_ratings
		WHERE appid = ?
		ORDER BY created_at DESC
	`
	if err := s.db.Select(&ratings, query, appID); err != nil {
		return nil, fmt.Errorf("failed to get ratings: %w", err)
	}

	out := &models.CommunityRating{AppID: appID, RatingCount: len(ratings), Ratings: ratings}
	if len(ratings) > 0 {
		sum := 0
		for _, r := range ratings {
			sum += r.Rating
		}
		out.AvgRating = float64(sum) / float64(len(ratings))
	}
	return out, nil
}

// AddTip records a community tip for an achievement
func (s *RatingService) AddTip(steamID string, appID int64, apiName string, difficulty int, tip string) error {
	if difficulty < 1 || difficulty > 5 {
		return fmt.Errorf("difficulty must be between 1 and 5")
	}
	if tip == "" {
		return fmt.Errorf("tip must not be empty")
	}
	query := `
		INSERT INTO achievement_tips (steam_id, appid, apiname, difficulty, tip, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.Exec(query, steamID, appID, apiName, difficulty, tip, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to add tip: %w", err)
	}
	return nil
}

// GetTips returns tips for an achievement, newest first
func (s *RatingService) GetTips(appID int64, apiName string) ([]models.AchievementTip, error) {
	var tips []models.AchievementTip
	query := `
		SELECT id, steam_id, appid, apiname, difficulty, tip, created_at
		FROM achievement_tips
		WHERE appid = ? AND apiname = ?
		ORDER BY created_at DESC
	`
	if err := s.db.Select(&tips, query, appID, apiName); err != nil {
		return nil, fmt.Errorf("failed to get tips: %w", err)
	}
	return tips, nil
}
