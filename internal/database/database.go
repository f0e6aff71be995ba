package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sqlx.DB
}

// NewDB creates a new database connection
func NewDB(databaseURL string) (*DB, error) {
	if databaseURL == "" {
		databaseURL = "overachiever.db" // Default SQLite file
	}

	db, err := sqlx.Connect("sqlite3", databaseURL+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dbWrapper := &DB{DB: db}

	// Initialize database schema
	if err := dbWrapper.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return dbWrapper, nil
}

// createTables creates the necessary database tables
func (db *DB) createTables() error {
	usersTable := `
	CREATE TABLE IF NOT EXISTS users (
		steam_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		avatar_url TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_seen DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	userGamesTable := `
	CREATE TABLE IF NOT EXISTS user_games (
		steam_id TEXT NOT NULL,
		appid INTEGER NOT NULL,
		name TEXT NOT NULL,
		playtime_forever INTEGER NOT NULL DEFAULT 0,
		rtime_last_played INTEGER,
		img_icon_url TEXT,
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		achievements_total INTEGER,
		achievements_unlocked INTEGER,
		last_sync DATETIME,
		PRIMARY KEY (steam_id, appid),
		FOREIGN KEY (steam_id) REFERENCES users(steam_id) ON DELETE CASCADE
	);`

	userAchievementsTable := `
	CREATE TABLE IF NOT EXISTS user_achievements (
		steam_id TEXT NOT NULL,
		appid INTEGER NOT NULL,
		apiname TEXT NOT NULL,
		achieved BOOLEAN NOT NULL DEFAULT FALSE,
		unlocktime DATETIME,
		estimated BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (steam_id, appid, apiname),
		FOREIGN KEY (steam_id) REFERENCES users(steam_id) ON DELETE CASCADE
	);`

	// Static per-game metadata, shared by all users. Never deleted by scans.
	schemasTable := `
	CREATE TABLE IF NOT EXISTS achievement_schemas (
		appid INTEGER NOT NULL,
		apiname TEXT NOT NULL,
		display_name TEXT NOT NULL,
		description TEXT,
		icon TEXT NOT NULL DEFAULT '',
		icon_gray TEXT NOT NULL DEFAULT '',
		ord INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (appid, apiname)
	);`

	runHistoryTable := `
	CREATE TABLE IF NOT EXISTS run_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		steam_id TEXT NOT NULL,
		run_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		total_games INTEGER NOT NULL,
		FOREIGN KEY (steam_id) REFERENCES users(steam_id) ON DELETE CASCADE
	);`

	// Append-only; rows are never updated after insert.
	achievementHistoryTable := `
	CREATE TABLE IF NOT EXISTS achievement_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		steam_id TEXT NOT NULL,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		total_games INTEGER NOT NULL DEFAULT 0,
		total_achievements INTEGER NOT NULL,
		unlocked_achievements INTEGER NOT NULL,
		games_with_achievements INTEGER NOT NULL,
		avg_completion_percent REAL NOT NULL,
		failed_games INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (steam_id) REFERENCES users(steam_id) ON DELETE CASCADE
	);`

	ratingsTable := `
	CREATE TABLE IF NOT EXISTS game_ratings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		steam_id TEXT NOT NULL,
		appid INTEGER NOT NULL,
		rating INTEGER NOT NULL,
		comment TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (steam_id, appid)
	);`

	tipsTable := `
	CREATE TABLE IF NOT EXISTS achievement_tips (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		steam_id TEXT NOT NULL,
		appid INTEGER NOT NULL,
		apiname TEXT NOT NULL,
		difficulty INTEGER NOT NULL,
		tip TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	// Create indexes for better performance
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_user_games_steam_id ON user_games(steam_id);`,
		`CREATE INDEX IF NOT EXISTS idx_user_achievements_game ON user_achievements(steam_id, appid);`,
		`CREATE INDEX IF NOT EXISTS idx_run_history_user ON run_history(steam_id, run_at);`,
		`CREATE INDEX IF NOT EXISTS idx_achievement_history_user ON achievement_history(steam_id, recorded_at);`,
		`CREATE INDEX IF NOT EXISTS idx_game_ratings_appid ON game_ratings(appid);`,
		`CREATE INDEX IF NOT EXISTS idx_achievement_tips_target ON achievement_tips(appid, apiname);`,
	}

	tables := []string{
		usersTable, userGamesTable, userAchievementsTable, schemasTable,
		runHistoryTable, achievementHistoryTable, ratingsTable, tipsTable,
	}

	// Execute table creation
	for _, query := range tables {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	// Create indexes
	for _, index := range indexes {
		if _, err := db.Exec(index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
