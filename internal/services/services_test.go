package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overachiever/overachiever-web/internal/database"
	"github.com/overachiever/overachiever-web/internal/models"
	"github.com/overachiever/overachiever-web/internal/provider"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// seedUser satisfies the foreign keys on user-owned tables.
func seedUser(t *testing.T, db *database.DB, steamID string) {
	t.Helper()
	_, err := NewUserService(db).GetOrCreate(steamID, "Player "+steamID, nil)
	require.NoError(t, err)
}

func TestUserGetOrCreateRefreshesProfile(t *testing.T) {
	users := NewUserService(newTestDB(t))

	u, err := users.GetOrCreate("76561198000000001", "Gordon", nil)
	require.NoError(t, err)
	assert.Equal(t, "Gordon", u.DisplayName)

	avatar := "https://avatars.example/gordon.jpg"
	u, err = users.GetOrCreate("76561198000000001", "Dr. Freeman", &avatar)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Freeman", u.DisplayName)
	require.NotNil(t, u.AvatarURL)
	assert.Equal(t, avatar, *u.AvatarURL)

	all, err := users.List()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertLibraryPreservesCounts(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "user")
	games := NewGameService(db)
	now := time.Now().UTC()

	lib := []provider.LibraryGame{{AppID: 10, Name: "Half-Life", PlaytimeForever: 100}}
	require.NoError(t, games.UpsertLibrary("user", lib))
	require.NoError(t, games.UpdateCounts("user", 10, 5, 2, now))

	// A later library merge must not wipe scan results.
	lib[0].PlaytimeForever = 160
	require.NoError(t, games.UpsertLibrary("user", lib))

	got, err := games.GetUserGames("user")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(160), got[0].PlaytimeForever)
	require.NotNil(t, got[0].AchievementsTotal)
	assert.Equal(t, 5, *got[0].AchievementsTotal)
	require.NotNil(t, got[0].AchievementsUnlocked)
	assert.Equal(t, 2, *got[0].AchievementsUnlocked)
}

func TestApplyUnlocksIsMonotonic(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "user")
	games := NewGameService(db)
	fetchedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	unlockedAt := fetchedAt.Add(-time.Hour)

	require.NoError(t, games.ApplyUnlocks("user", 10, []provider.Unlock{
		{APIName: "A1", Achieved: true, UnlockTime: &unlockedAt},
		{APIName: "A2"},
	}, fetchedAt))

	// The provider later claims A1 is locked again; the stored unlock wins.
	later := fetchedAt.Add(time.Hour)
	require.NoError(t, games.ApplyUnlocks("user", 10, []provider.Unlock{
		{APIName: "A1"},
		{APIName: "A2", Achieved: true},
	}, later))

	got, err := games.GetGameAchievements("user", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byName := map[string]models.GameAchievement{}
	for _, a := range got {
		byName[a.APIName] = a
	}

	a1 := byName["A1"]
	assert.True(t, a1.Achieved, "unlock must never regress")
	require.NotNil(t, a1.UnlockTime)
	assert.True(t, a1.UnlockTime.Equal(unlockedAt), "original unlock time must survive")

	a2 := byName["A2"]
	assert.True(t, a2.Achieved)
	require.NotNil(t, a2.UnlockTime)
	assert.True(t, a2.UnlockTime.Equal(later), "missing provider time falls back to fetch time")
}

func TestSchemaOrderPreserved(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "user")
	games := NewGameService(db)

	entries := []provider.SchemaEntry{
		{APIName: "Z_LAST", DisplayName: "Z Last"},
		{APIName: "A_FIRST", DisplayName: "A First"},
		{APIName: "M_MIDDLE", DisplayName: "M Middle"},
	}
	require.NoError(t, games.UpsertSchema(10, entries))
	require.NoError(t, games.ApplyUnlocks("user", 10, []provider.Unlock{
		{APIName: "A_FIRST"}, {APIName: "M_MIDDLE"}, {APIName: "Z_LAST"},
	}, time.Now().UTC()))

	got, err := games.GetGameAchievements("user", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Declaration order, not alphabetical.
	assert.Equal(t, "Z_LAST", got[0].APIName)
	assert.Equal(t, "A_FIRST", got[1].APIName)
	assert.Equal(t, "M_MIDDLE", got[2].APIName)
}

func TestSnapshotNilBeforeFirstScan(t *testing.T) {
	games := NewGameService(newTestDB(t))

	snap, err := games.Snapshot("never-scanned")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "user")
	games := NewGameService(db)
	now := time.Now().UTC()

	require.NoError(t, games.UpsertLibrary("user", []provider.LibraryGame{
		{AppID: 20, Name: "Portal", PlaytimeForever: 30},
		{AppID: 10, Name: "Half-Life", PlaytimeForever: 100},
	}))
	require.NoError(t, games.UpsertSchema(10, []provider.SchemaEntry{
		{APIName: "A1"}, {APIName: "A2"},
	}))
	require.NoError(t, games.ApplyUnlocks("user", 10, []provider.Unlock{
		{APIName: "A1", Achieved: true},
		{APIName: "A2"},
	}, now))
	require.NoError(t, games.UpdateCounts("user", 10, 2, 1, now))

	snap, err := games.Snapshot("user")
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Len(t, snap.Games, 2)

	// Ordered by appid for deterministic diffs.
	assert.Equal(t, int64(10), snap.Games[0].AppID)
	assert.True(t, snap.Games[0].AchievementsKnown)
	assert.Equal(t, 1, snap.Games[0].Unlocked())
	require.Len(t, snap.Games[0].Achievements, 2)

	assert.Equal(t, int64(20), snap.Games[1].AppID)
	assert.False(t, snap.Games[1].AchievementsKnown, "unscanned game must not claim achievement state")
}

func TestHistoryQueryAscendingRegardlessOfInsertOrder(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "user")
	history := NewHistoryService(db)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Insert out of order.
	for _, offset := range []int{2, 0, 1} {
		require.NoError(t, history.Append(models.HistorySnapshot{
			SteamID:    "user",
			RecordedAt: base.AddDate(0, 0, offset),
			TotalGames: offset,
		}))
	}

	got, err := history.Query("user", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := 0; i < len(got)-1; i++ {
		assert.False(t, got[i].RecordedAt.After(got[i+1].RecordedAt), "snapshots must be ascending")
	}
}

func TestHistoryQueryBounds(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "user")
	history := NewHistoryService(db)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for day := 0; day < 5; day++ {
		require.NoError(t, history.Append(models.HistorySnapshot{
			SteamID:    "user",
			RecordedAt: base.AddDate(0, 0, day),
		}))
	}

	got, err := history.Query("user", base.AddDate(0, 0, 1), base.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = history.Query("user", base.AddDate(0, 0, 3), time.Time{})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = history.Query("other-user", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHistoryLatest(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "user")
	history := NewHistoryService(db)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	latest, err := history.Latest("user")
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, history.Append(models.HistorySnapshot{SteamID: "user", RecordedAt: base, TotalGames: 1}))
	require.NoError(t, history.Append(models.HistorySnapshot{SteamID: "user", RecordedAt: base.AddDate(0, 0, 1), TotalGames: 2}))

	latest, err = history.Latest("user")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 2, latest.TotalGames)
}

func TestUpsertRatingIdempotentPerUserGame(t *testing.T) {
	ratings := NewRatingService(newTestDB(t))

	require.NoError(t, ratings.UpsertRating("user-a", 10, 3, nil))
	comment := "harder than it looks"
	require.NoError(t, ratings.UpsertRating("user-a", 10, 5, &comment))
	require.NoError(t, ratings.UpsertRating("user-b", 10, 2, nil))

	got, err := ratings.GetCommunityRating(10)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RatingCount)
	assert.InDelta(t, 3.5, got.AvgRating, 0.001)
}

func TestUpsertRatingValidatesRange(t *testing.T) {
	ratings := NewRatingService(newTestDB(t))

	assert.ErrorIs(t, ratings.UpsertRating("user", 10, 0, nil), ErrInvalidRating)
	assert.ErrorIs(t, ratings.UpsertRating("user", 10, 6, nil), ErrInvalidRating)
}

func TestTips(t *testing.T) {
	ratings := NewRatingService(newTestDB(t))

	require.NoError(t, ratings.AddTip("user", 10, "A1", 4, "practice the jump first"))
	require.NoError(t, ratings.AddTip("other", 10, "A1", 2, "use the shortcut"))
	require.NoError(t, ratings.AddTip("user", 10, "A2", 1, "unmissable"))

	got, err := ratings.GetTips(10, "A1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
