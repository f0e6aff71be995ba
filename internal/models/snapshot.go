package models

import (
	"time"
)

// UserSnapshot is the full per-user state at one point in time, either
// rebuilt from the database (previous state) or assembled from a fresh
// provider fetch (current state). Games and their achievements keep the
// provider's declaration order so delta output stays deterministic.
type UserSnapshot struct {
	SteamID string
	TakenAt time.Time
	Games   []GameSnapshot
}

type GameSnapshot struct {
	AppID    int64
	Name     string
	Playtime int64 // minutes
	// AchievementsKnown is false until the game's schema has been fetched
	// at least once; Total/Achievements are meaningless before that.
	AchievementsKnown bool
	Achievements      []AchievementSnapshot
}

type AchievementSnapshot struct {
	APIName    string
	Achieved   bool
	UnlockTime *time.Time
}

// Game returns the snapshot entry for appID, or nil.
func (s *UserSnapshot) Game(appID int64) *GameSnapshot {
	for i := range s.Games {
		if s.Games[i].AppID == appID {
			return &s.Games[i]
		}
	}
	return nil
}

// Achievement returns the entry for apiName, or nil.
func (g *GameSnapshot) Achievement(apiName string) *AchievementSnapshot {
	for i := range g.Achievements {
		if g.Achievements[i].APIName == apiName {
			return &g.Achievements[i]
		}
	}
	return nil
}

// Unlocked counts achieved entries.
func (g *GameSnapshot) Unlocked() int {
	n := 0
	for i := range g.Achievements {
		if g.Achievements[i].Achieved {
			n++
		}
	}
	return n
}
