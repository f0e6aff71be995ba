package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/overachiever/overachiever-web/internal/database"
	"github.com/overachiever/overachiever-web/internal/models"
)

type UserService struct {
	db *database.DB
}

func NewUserService(db *database.DB) *UserService {
	return &UserService{db: db}
}

// GetOrCreate upserts the user record on login. Identity comes from the
// Steam OpenID callback; display name and avatar refresh on every login.
func (s *UserService) GetOrCreate(steamID, displayName string, avatarURL *string) (*models.User, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO users (steam_id, display_name, avatar_url, created_at, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(steam_id) DO UPDATE SET
			display_name = excluded.display_name,
			avatar_url = COALESCE(excluded.avatar_url, users.avatar_url),
			last_seen = excluded.last_seen
	`
	if _, err := s.db.Exec(query, steamID, displayName, avatarURL, now, now); err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return s.GetBySteamID(steamID)
}

// GetBySteamID retrieves a user by their Steam identifier, or nil when the
// user has never logged in.
func (s *UserService) GetBySteamID(steamID string) (*models.User, error) {
	var user models.User
	query := `SELECT steam_id, display_name, avatar_url, created_at, last_seen FROM users WHERE steam_id = ?`

	err := s.db.Get(&user, query, steamID)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// TouchLastSeen updates the user's last activity timestamp
func (s *UserService) TouchLastSeen(steamID string) error {
	query := `UPDATE users SET last_seen = ? WHERE steam_id = ?`
	_, err := s.db.Exec(query, time.Now().UTC(), steamID)
	return err
}

// List returns all known users, most recently seen first. The scheduler
// walks this to enqueue periodic scans.
func (s *UserService) List() ([]models.User, error) {
	var users []models.User
	query := `SELECT steam_id, display_name, avatar_url, created_at, last_seen FROM users ORDER BY last_seen DESC`

	if err := s.db.Select(&users, query); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}
