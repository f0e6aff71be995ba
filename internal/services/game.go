package services

import (
	"fmt"
	"time"

	"github.com/overachiever/overachiever-web/internal/database"
	"github.com/overachiever/overachiever-web/internal/models"
	"github.com/overachiever/overachiever-web/internal/provider"
)

// GameService owns per-user game and achievement state. Only the sync
// orchestrator writes through it, and the scan queue guarantees a single
// writer per user at a time.
type GameService struct {
	db *database.DB
}

func NewGameService(db *database.DB) *GameService {
	return &GameService{db: db}
}

// UpsertLibrary merges a freshly fetched library into user_games. Existing
// achievement counts and sync timestamps survive the merge.
func (s *GameService) UpsertLibrary(steamID string, games []provider.LibraryGame) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO user_games (steam_id, appid, name, playtime_forever, rtime_last_played, img_icon_url, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(steam_id, appid) DO UPDATE SET
			name = excluded.name,
			playtime_forever = excluded.playtime_forever,
			rtime_last_played = excluded.rtime_last_played,
			img_icon_url = excluded.img_icon_url
	`
	for _, g := range games {
		var icon *string
		if g.ImgIconURL != "" {
			icon = &g.ImgIconURL
		}
		if _, err := s.db.Exec(query, steamID, g.AppID, g.Name, g.PlaytimeForever, g.RtimeLastPlayed, icon, now); err != nil {
			return fmt.Errorf("failed to upsert game %d: %w", g.AppID, err)
		}
	}
	return nil
}

// UpsertSchema refreshes a game's achievement metadata. The ord column
// records the provider's declaration order; schema rows are never deleted
// by scans.
func (s *GameService) UpsertSchema(appID int64, entries []provider.SchemaEntry) error {
	query := `
		INSERT INTO achievement_schemas (appid, apiname, display_name, description, icon, icon_gray, ord)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(appid, apiname) DO UPDATE SET
			display_name = excluded.display_name,
			description = excluded.description,
			icon = excluded.icon,
			icon_gray = excluded.icon_gray,
			ord = excluded.ord
	`
	for i, e := range entries {
		if _, err := s.db.Exec(query, appID, e.APIName, e.DisplayName, e.Description, e.Icon, e.IconGray, i); err != nil {
			return fmt.Errorf("failed to upsert schema %d/%s: %w", appID, e.APIName, err)
		}
	}
	return nil
}

// ApplyUnlocks writes per-user unlock state. Achieved is monotonic: a
// provider row claiming an unlocked achievement is now locked is ignored.
// Newly achieved entries without a provider timestamp get fetchedAt with
// the estimated flag set.
func (s *GameService) ApplyUnlocks(steamID string, appID int64, unlocks []provider.Unlock, fetchedAt time.Time) error {
	query := `
		INSERT INTO user_achievements (steam_id, appid, apiname, achieved, unlocktime, estimated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(steam_id, appid, apiname) DO UPDATE SET
			achieved = user_achievements.achieved OR excluded.achieved,
			unlocktime = CASE WHEN user_achievements.achieved THEN user_achievements.unlocktime ELSE excluded.unlocktime END,
			estimated = CASE WHEN user_achievements.achieved THEN user_achievements.estimated ELSE excluded.estimated END
	`
	for _, u := range unlocks {
		var unlockTime *time.Time
		estimated := false
		if u.Achieved {
			if u.UnlockTime != nil {
				unlockTime = u.UnlockTime
			} else {
				t := fetchedAt
				unlockTime = &t
				estimated = true
			}
		}
		if _, err := s.db.Exec(query, steamID, appID, u.APIName, u.Achieved, unlockTime, estimated); err != nil {
			return fmt.Errorf("failed to upsert achievement %d/%s: %w", appID, u.APIName, err)
		}
	}
	return nil
}

// UpdateCounts stores a game's achievement totals after a successful scan
func (s *GameService) UpdateCounts(steamID string, appID int64, total, unlocked int, at time.Time) error {
	query := `
		UPDATE user_games
		SET achievements_total = ?, achievements_unlocked = ?, last_sync = ?
		WHERE steam_id = ? AND appid = ?
	`
	_, err := s.db.Exec(query, total, unlocked, at, steamID, appID)
	return err
}

// GetUserGames returns the user's library ordered by name
func (s *GameService) GetUserGames(steamID string) ([]models.Game, error) {
	var games []models.Game
	query := `
		SELECT steam_id, appid, name, playtime_forever, rtime_last_played, img_icon_url,
		       added_at, achievements_total, achievements_unlocked, last_sync
		FROM user_games
		WHERE steam_id = ?
		ORDER BY name
	`
	if err := s.db.Select(&games, query, steamID); err != nil {
		return nil, fmt.Errorf("failed to get user games: %w", err)
	}
	return games, nil
}

// GetGameAchievements returns a game's achievements with display metadata,
// in the provider's declaration order.
func (s *GameService) GetGameAchievements(steamID string, appID int64) ([]models.GameAchievement, error) {
	var achievements []models.GameAchievement
	query := `
		SELECT ua.appid, ua.apiname,
		       COALESCE(s.display_name, ua.apiname) AS name,
		       s.description,
		       COALESCE(s.icon, '') AS icon,
		       COALESCE(s.icon_gray, '') AS icon_gray,
		       ua.achieved, ua.unlocktime
		FROM user_achievements ua
		LEFT JOIN achievement_schemas s ON ua.appid = s.appid AND ua.apiname = s.apiname
		WHERE ua.steam_id = ? AND ua.appid = ?
		ORDER BY COALESCE(s.ord, 0), ua.apiname
	`
	if err := s.db.Select(&achievements, query, steamID, appID); err != nil {
		return nil, fmt.Errorf("failed to get game achievements: %w", err)
	}
	return achievements, nil
}

// Snapshot rebuilds the user's full persisted state for delta computation.
// Returns nil when the user has never been scanned.
func (s *GameService) Snapshot(steamID string) (*models.UserSnapshot, error) {
	var games []models.Game
	gamesQuery := `
		SELECT steam_id, appid, name, playtime_forever, rtime_last_played, img_icon_url,
		       added_at, achievements_total, achievements_unlocked, last_sync
		FROM user_games
		WHERE steam_id = ?
		ORDER BY appid
	`
	if err := s.db.Select(&games, gamesQuery, steamID); err != nil {
		return nil, fmt.Errorf("failed to load games for snapshot: %w", err)
	}
	if len(games) == 0 {
		return nil, nil
	}

	type achRow struct {
		AppID      int64      `db:"appid"`
		APIName    string     `db:"apiname"`
		Achieved   bool       `db:"achieved"`
		UnlockTime *time.Time `db:"unlocktime"`
	}
	var rows []achRow
	achQuery := `
		SELECT ua.appid, ua.apiname, ua.achieved, ua.unlocktime
		FROM user_achievements ua
		LEFT JOIN achievement_schemas s ON ua.appid = s.appid AND ua.apiname = s.apiname
		WHERE ua.steam_id = ?
		ORDER BY ua.appid, COALESCE(s.ord, 0), ua.apiname
	`
	if err := s.db.Select(&rows, achQuery, steamID); err != nil {
		return nil, fmt.Errorf("failed to load achievements for snapshot: %w", err)
	}

	byGame := make(map[int64][]models.AchievementSnapshot)
	for _, r := range rows {
		byGame[r.AppID] = append(byGame[r.AppID], models.AchievementSnapshot{
			APIName:    r.APIName,
			Achieved:   r.Achieved,
			UnlockTime: r.UnlockTime,
		})
	}

	snap := &models.UserSnapshot{SteamID: steamID, TakenAt: time.Now().UTC()}
	for _, g := range games {
		snap.Games = append(snap.Games, models.GameSnapshot{
			AppID:             g.AppID,
			Name:              g.Name,
			Playtime:          g.PlaytimeForever,
			AchievementsKnown: g.AchievementsTotal != nil,
			Achievements:      byGame[g.AppID],
		})
	}
	return snap, nil
}
