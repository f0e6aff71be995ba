// Package delta computes the change set between two successive snapshots of
// a user's library. Provider data is treated as possibly inconsistent:
// regressions (shrinking playtime, re-locked achievements) are classified as
// anomalies and never applied as negative progress.
package delta

import (
	"time"

	"github.com/overachiever/overachiever-web/internal/models"
)

// NewGame is a library entry absent from the previous snapshot.
type NewGame struct {
	AppID int64  `json:"appid"`
	Name  string `json:"name"`
}

// PlaytimeChange records minutes gained on an existing game. A provider
// report lower than the stored value yields Minutes == 0 with Anomaly set.
type PlaytimeChange struct {
	AppID   int64 `json:"appid"`
	Minutes int64 `json:"minutes"`
	Anomaly bool  `json:"anomaly,omitempty"`
}

// Unlock is an achievement that transitioned locked -> unlocked. Estimated
// marks an unlock time we substituted (the fetch time) because the provider
// supplied none.
type Unlock struct {
	AppID      int64     `json:"appid"`
	APIName    string    `json:"apiname"`
	UnlockTime time.Time `json:"unlocktime"`
	Estimated  bool      `json:"estimated,omitempty"`
}

// SchemaChange records a game whose achievement total moved, typically a
// DLC adding entries.
type SchemaChange struct {
	AppID    int64 `json:"appid"`
	OldTotal int   `json:"old_total"`
	NewTotal int   `json:"new_total"`
}

// Relock is an anomaly record: the provider reported a previously unlocked
// achievement as locked. It is diagnostic only and never applied.
type Relock struct {
	AppID   int64  `json:"appid"`
	APIName string `json:"apiname"`
}

type Delta struct {
	NewGames        []NewGame        `json:"new_games,omitempty"`
	PlaytimeChanges []PlaytimeChange `json:"playtime_changes,omitempty"`
	Unlocks         []Unlock         `json:"unlocks,omitempty"`
	SchemaChanges   []SchemaChange   `json:"schema_changes,omitempty"`
	Relocks         []Relock         `json:"relocks,omitempty"`
}

func (d *Delta) Empty() bool {
	return len(d.NewGames) == 0 && len(d.PlaytimeChanges) == 0 &&
		len(d.Unlocks) == 0 && len(d.SchemaChanges) == 0 && len(d.Relocks) == 0
}

// Compute diffs prev against cur. prev may be nil for a first scan, which
// makes every game new and every unlocked achievement a fresh unlock.
// Output ordering follows cur's game order and, within a game, the schema
// declaration order, so identical inputs always produce identical deltas.
func Compute(prev *models.UserSnapshot, cur models.UserSnapshot) Delta {
	var d Delta

	for gi := range cur.Games {
		cg := &cur.Games[gi]

		var pg *models.GameSnapshot
		if prev != nil {
			pg = prev.Game(cg.AppID)
		}

		if pg == nil {
			d.NewGames = append(d.NewGames, NewGame{AppID: cg.AppID, Name: cg.Name})
		} else {
			switch {
			case cg.Playtime > pg.Playtime:
				d.PlaytimeChanges = append(d.PlaytimeChanges, PlaytimeChange{
					AppID:   cg.AppID,
					Minutes: cg.Playtime - pg.Playtime,
				})
			case cg.Playtime < pg.Playtime:
				d.PlaytimeChanges = append(d.PlaytimeChanges, PlaytimeChange{
					AppID:   cg.AppID,
					Anomaly: true,
				})
			}
		}

		if !cg.AchievementsKnown {
			continue
		}

		if pg != nil && pg.AchievementsKnown && len(pg.Achievements) != len(cg.Achievements) {
			d.SchemaChanges = append(d.SchemaChanges, SchemaChange{
				AppID:    cg.AppID,
				OldTotal: len(pg.Achievements),
				NewTotal: len(cg.Achievements),
			})
		}

		for ai := range cg.Achievements {
			ca := &cg.Achievements[ai]

			var pa *models.AchievementSnapshot
			if pg != nil {
				pa = pg.Achievement(ca.APIName)
			}

			wasAchieved := pa != nil && pa.Achieved
			switch {
			case ca.Achieved && !wasAchieved:
				u := Unlock{AppID: cg.AppID, APIName: ca.APIName}
				if ca.UnlockTime != nil {
					u.UnlockTime = *ca.UnlockTime
				} else {
					u.UnlockTime = cur.TakenAt
					u.Estimated = true
				}
				d.Unlocks = append(d.Unlocks, u)
			case !ca.Achieved && wasAchieved:
				d.Relocks = append(d.Relocks, Relock{AppID: cg.AppID, APIName: ca.APIName})
			}
		}
	}

	return d
}
