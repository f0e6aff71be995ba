package services

import (
	"fmt"
	"time"

	"github.com/overachiever/overachiever-web/internal/database"
	"github.com/overachiever/overachiever-web/internal/models"
)

// HistoryService is the append-only trend store. Rows are never updated or
// deleted by normal operation; queries are pure reads ordered by time.
type HistoryService struct {
	db *database.DB
}

func NewHistoryService(db *database.DB) *HistoryService {
	return &HistoryService{db: db}
}

// AppendRun records one completed scan and the library size it observed
func (s *HistoryService) AppendRun(steamID string, totalGames int, at time.Time) error {
	query := `INSERT INTO run_history (steam_id, run_at, total_games) VALUES (?, ?, ?)`
	if _, err := s.db.Exec(query, steamID, at, totalGames); err != nil {
		return fmt.Errorf("failed to append run history: %w", err)
	}
	return nil
}

// Append writes one achievement history snapshot
func (s *HistoryService) Append(snap models.HistorySnapshot) error {
	query := `
		INSERT INTO achievement_history
			(steam_id, recorded_at, total_games, total_achievements, unlocked_achievements,
			 games_with_achievements, avg_completion_percent, failed_games)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query, snap.SteamID, snap.RecordedAt, snap.TotalGames,
		snap.TotalAchievements, snap.UnlockedAchievements, snap.GamesWithAchievements,
		snap.AvgCompletionPercent, snap.FailedGames)
	if err != nil {
		return fmt.Errorf("failed to append history snapshot: %w", err)
	}
	return nil
}

// Query returns snapshots for the user within [from, to], ascending by
// recorded_at. Zero bounds are open-ended.
func (s *HistoryService) Query(steamID string, from, to time.Time) ([]models.HistorySnapshot, error) {
	query := `
		SELECT id, steam_id, recorded_at, total_games, total_achievements, unlocked_achievements,
		       games_with_achievements, avg_completion_percent, failed_games
		FROM achievement_history
		WHERE steam_id = ?
	`
	args := []interface{}{steamID}
	if !from.IsZero() {
		query += ` AND recorded_at >= ?`
		args = append(args, from)
	}
	if !to.IsZero() {
		query += ` AND recorded_at <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY recorded_at ASC, id ASC`

	var snapshots []models.HistorySnapshot
	if err := s.db.Select(&snapshots, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return snapshots, nil
}

// QueryRuns returns the user's run history ascending by run time
func (s *HistoryService) QueryRuns(steamID string) ([]models.RunHistory, error) {
	var runs []models.RunHistory
	query := `
		SELECT id, steam_id, run_at, total_games
		FROM run_history
		WHERE steam_id = ?
		ORDER BY run_at ASC, id ASC
	`
	if err := s.db.Select(&runs, query, steamID); err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	return runs, nil
}

// Latest returns the most recent snapshot for the user, or nil.
func (s *HistoryService) Latest(steamID string) (*models.HistorySnapshot, error) {
	var snapshots []models.HistorySnapshot
	query := `
		SELECT id, steam_id, recorded_at, total_games, total_achievements, unlocked_achievements,
		       games_with_achievements, avg_completion_percent, failed_games
		FROM achievement_history
		WHERE steam_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`
	if err := s.db.Select(&snapshots, query, steamID); err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}
	if len(snapshots) == 0 {
		return nil, nil
	}
	return &snapshots[0], nil
}
