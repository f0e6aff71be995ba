// Package sync drives a single user's scan from admission through fetch,
// delta computation, persistence and notification.
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/overachiever/overachiever-web/internal/delta"
	"github.com/overachiever/overachiever-web/internal/logger"
	"github.com/overachiever/overachiever-web/internal/models"
	"github.com/overachiever/overachiever-web/internal/provider"
	"github.com/overachiever/overachiever-web/internal/ratelimit"
	"github.com/overachiever/overachiever-web/internal/scanqueue"
	"github.com/overachiever/overachiever-web/internal/services"
)

// Scan stages, reported in failure events.
const (
	StageFetchingLibrary = "fetching_library"
	StageFetchingGames   = "fetching_games"
	StageComputing       = "computing"
	StagePersisting      = "persisting"
)

// Event is the envelope pushed to subscribers over the live channel.
type Event struct {
	TicketID string      `json:"ticket_id"`
	Type     string      `json:"type"` // progress | result | error
	Payload  interface{} `json:"payload,omitempty"`
}

// Progress is emitted after each game finishes, success or not.
type Progress struct {
	GamesDone  int    `json:"games_done"`
	GamesTotal int    `json:"games_total"`
	GameName   string `json:"game_name,omitempty"`
}

// GameFailure records one game whose achievement fetch failed; the scan
// carries on without it.
type GameFailure struct {
	AppID   int64  `json:"appid"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Result is the terminal payload of a completed scan.
type Result struct {
	GamesTotal   int                    `json:"games_total"`
	GamesScanned int                    `json:"games_scanned"`
	GamesFailed  int                    `json:"games_failed"`
	Delta        delta.Delta            `json:"delta"`
	Snapshot     models.HistorySnapshot `json:"snapshot"`
	Failures     []GameFailure          `json:"failures,omitempty"`
}

// Failure is the terminal payload of a failed or cancelled scan.
type Failure struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Notifier fans events out to every live connection watching the user.
type Notifier interface {
	Publish(userID string, event interface{})
}

type Config struct {
	FanOut        int
	RetryAttempts int
	RetryBackoff  time.Duration
}

// Orchestrator runs the scan state machine. The scan queue guarantees at
// most one run per user at a time; the rate limiter gates every provider
// call individually.
type Orchestrator struct {
	provider provider.Client
	limiter  *ratelimit.Limiter
	queue    *scanqueue.Queue
	games    *services.GameService
	history  *services.HistoryService
	notify   Notifier
	cfg      Config
	log      *logger.Log
}

func New(p provider.Client, limiter *ratelimit.Limiter, queue *scanqueue.Queue,
	games *services.GameService, history *services.HistoryService,
	notify Notifier, cfg Config) *Orchestrator {
	if cfg.FanOut < 1 {
		cfg.FanOut = 1
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	return &Orchestrator{
		provider: p,
		limiter:  limiter,
		queue:    queue,
		games:    games,
		history:  history,
		notify:   notify,
		cfg:      cfg,
		log:      logger.New(),
	}
}

// Request submits a scan for the user and starts it when admitted. The
// returned admission tells the caller whether they were attached to a new
// ticket, an existing one, or rejected.
func (o *Orchestrator) Request(userID string, reason scanqueue.Reason, subscriber string) scanqueue.Admission {
	adm := o.queue.Submit(userID, reason, subscriber)
	if adm.Status == scanqueue.StatusAdmitted {
		go o.run(adm.Ticket)
	}
	return adm
}

// gameScan is the per-game outcome collected during fan-out.
type gameScan struct {
	snap    models.GameSnapshot
	failure *GameFailure
	skipped bool
}

func (o *Orchestrator) run(t *scanqueue.Ticket) {
	ctx := t.Context()
	log := o.log.WithField("ticket", t.ID).WithField("user", t.UserID)
	log.Info("scan started")

	prev, err := o.games.Snapshot(t.UserID)
	if err != nil {
		o.fail(t, StageComputing, "persistence", err)
		return
	}

	var lib []provider.LibraryGame
	err = o.call(ctx, func(ctx context.Context) error {
		var ferr error
		lib, ferr = o.provider.FetchLibrary(ctx, t.UserID)
		return ferr
	})
	if err != nil {
		kind := provider.KindOf(err).String()
		if ctx.Err() != nil {
			kind = "cancelled"
		}
		// No library, nothing to proceed with: fatal for the whole ticket.
		o.fail(t, StageFetchingLibrary, kind, err)
		return
	}

	if err := o.games.UpsertLibrary(t.UserID, lib); err != nil {
		o.fail(t, StagePersisting, "persistence", err)
		return
	}

	fetchedAt := time.Now().UTC()
	scans := o.scanGames(ctx, t, lib, fetchedAt)

	if ctx.Err() != nil {
		o.fail(t, StageFetchingGames, "cancelled", ctx.Err())
		return
	}

	cur := models.UserSnapshot{SteamID: t.UserID, TakenAt: fetchedAt}
	var failures []GameFailure
	for i, g := range lib {
		gs := scans[i].snap
		gs.AppID = g.AppID
		gs.Name = g.Name
		gs.Playtime = g.PlaytimeForever
		cur.Games = append(cur.Games, gs)
		if scans[i].failure != nil {
			failures = append(failures, *scans[i].failure)
		}
	}

	d := delta.Compute(prev, cur)
	for _, r := range d.Relocks {
		log.WithField("appid", r.AppID).WithField("achievement", r.APIName).
			Warn("provider reported re-locked achievement, ignoring")
	}

	snap := buildSnapshot(t.UserID, fetchedAt, cur, len(failures))
	if err := o.history.Append(snap); err != nil {
		o.fail(t, StagePersisting, "persistence", err)
		return
	}
	if err := o.history.AppendRun(t.UserID, len(lib), fetchedAt); err != nil {
		o.fail(t, StagePersisting, "persistence", err)
		return
	}

	o.queue.Complete(t)
	o.notify.Publish(t.UserID, Event{
		TicketID: t.ID,
		Type:     "result",
		Payload: Result{
			GamesTotal:   len(lib),
			GamesScanned: len(lib) - len(failures),
			GamesFailed:  len(failures),
			Delta:        d,
			Snapshot:     snap,
			Failures:     failures,
		},
	})
	log.Info(fmt.Sprintf("scan finished: %d games, %d failed, %d new unlocks",
		len(lib), len(failures), len(d.Unlocks)))
}

// scanGames fetches schema and unlock state for every library game, up to
// cfg.FanOut at a time. Results come back indexed by library order so the
// assembled snapshot is deterministic. Cancellation is cooperative: checked
// before each game starts, never mid-fetch.
func (o *Orchestrator) scanGames(ctx context.Context, t *scanqueue.Ticket, lib []provider.LibraryGame, fetchedAt time.Time) []gameScan {
	scans := make([]gameScan, len(lib))
	sem := make(chan struct{}, o.cfg.FanOut)

	var wg sync.WaitGroup
	var progressMu sync.Mutex
	done := 0

	for i := range lib {
		if ctx.Err() != nil {
			scans[i].skipped = true
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			scans[i] = o.scanGame(ctx, t.UserID, lib[i], fetchedAt)

			// Holding the mutex across Publish keeps the done counts in
			// emission order for subscribers.
			progressMu.Lock()
			done++
			o.notify.Publish(t.UserID, Event{
				TicketID: t.ID,
				Type:     "progress",
				Payload:  Progress{GamesDone: done, GamesTotal: len(lib), GameName: lib[i].Name},
			})
			progressMu.Unlock()
		}(i)
	}
	wg.Wait()
	return scans
}

func (o *Orchestrator) scanGame(ctx context.Context, steamID string, g provider.LibraryGame, fetchedAt time.Time) gameScan {
	if ctx.Err() != nil {
		return gameScan{skipped: true}
	}

	fail := func(err error) gameScan {
		return gameScan{failure: &GameFailure{
			AppID:   g.AppID,
			Name:    g.Name,
			Kind:    provider.KindOf(err).String(),
			Message: err.Error(),
		}}
	}

	var schema []provider.SchemaEntry
	err := o.call(ctx, func(ctx context.Context) error {
		var ferr error
		schema, ferr = o.provider.FetchSchema(ctx, g.AppID)
		return ferr
	})
	if err != nil {
		if provider.KindOf(err) == provider.KindNotFound {
			// Game has no achievement schema at all; zero achievements is
			// a successful answer, not a failure.
			schema = nil
		} else {
			return fail(err)
		}
	}

	if len(schema) == 0 {
		if err := o.games.UpdateCounts(steamID, g.AppID, 0, 0, fetchedAt); err != nil {
			return fail(err)
		}
		return gameScan{snap: models.GameSnapshot{AchievementsKnown: true}}
	}

	var unlocks []provider.Unlock
	err = o.call(ctx, func(ctx context.Context) error {
		var ferr error
		unlocks, ferr = o.provider.FetchUnlocks(ctx, steamID, g.AppID)
		return ferr
	})
	if err != nil {
		if provider.KindOf(err) == provider.KindNotFound {
			// Stats exist for the game but not for this user: all locked.
			unlocks = nil
		} else {
			return fail(err)
		}
	}

	if err := o.games.UpsertSchema(g.AppID, schema); err != nil {
		return fail(err)
	}

	// Persist one row per schema entry, locked where the provider reported
	// nothing. A game whose achievement list is known but fully locked must
	// look the same on the next scan's previous snapshot.
	unlocked := make(map[string]provider.Unlock, len(unlocks))
	for _, u := range unlocks {
		unlocked[u.APIName] = u
	}
	rows := make([]provider.Unlock, 0, len(schema))
	for _, entry := range schema {
		u, ok := unlocked[entry.APIName]
		if !ok {
			u = provider.Unlock{APIName: entry.APIName}
		}
		rows = append(rows, u)
	}
	if err := o.games.ApplyUnlocks(steamID, g.AppID, rows, fetchedAt); err != nil {
		return fail(err)
	}

	// Assemble the game's snapshot in schema declaration order.
	snap := models.GameSnapshot{AchievementsKnown: true}
	unlockedCount := 0
	for _, entry := range schema {
		as := models.AchievementSnapshot{APIName: entry.APIName}
		if u, ok := unlocked[entry.APIName]; ok && u.Achieved {
			as.Achieved = true
			as.UnlockTime = u.UnlockTime
			unlockedCount++
		}
		snap.Achievements = append(snap.Achievements, as)
	}

	if err := o.games.UpdateCounts(steamID, g.AppID, len(schema), unlockedCount, fetchedAt); err != nil {
		return fail(err)
	}
	return gameScan{snap: snap}
}

// call runs one provider fetch behind the shared rate limiter, retrying
// transient failures with doubling backoff up to the configured attempts.
// Every attempt acquires its own permit; retries compete for quota like
// everyone else.
func (o *Orchestrator) call(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < o.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.cfg.RetryBackoff << (attempt - 1)):
			}
		}

		permit, perr := o.limiter.Acquire(ctx, 1)
		if perr != nil {
			return perr
		}
		if ctx.Err() != nil {
			permit.ReleaseEarly()
			return ctx.Err()
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !provider.Retryable(err) {
			return err
		}
	}
	return err
}

func (o *Orchestrator) fail(t *scanqueue.Ticket, stage, kind string, err error) {
	o.log.WithField("ticket", t.ID).WithField("user", t.UserID).WithError(err).
		Error("scan failed at " + stage)
	o.queue.Fail(t)
	o.notify.Publish(t.UserID, Event{
		TicketID: t.ID,
		Type:     "error",
		Payload:  Failure{Stage: stage, Kind: kind, Message: err.Error()},
	})
}

// buildSnapshot aggregates the scanned state into a history row. Games
// whose achievements are unknown (failed this scan, never scanned) or that
// have none are excluded from the average, not counted as 0%.
func buildSnapshot(steamID string, at time.Time, cur models.UserSnapshot, failedGames int) models.HistorySnapshot {
	snap := models.HistorySnapshot{
		SteamID:     steamID,
		RecordedAt:  at,
		TotalGames:  len(cur.Games),
		FailedGames: failedGames,
	}

	completionSum := 0.0
	for i := range cur.Games {
		g := &cur.Games[i]
		if !g.AchievementsKnown || len(g.Achievements) == 0 {
			continue
		}
		total := len(g.Achievements)
		unlocked := g.Unlocked()
		snap.TotalAchievements += total
		snap.UnlockedAchievements += unlocked
		snap.GamesWithAchievements++
		completionSum += float64(unlocked) / float64(total) * 100.0
	}
	if snap.GamesWithAchievements > 0 {
		snap.AvgCompletionPercent = completionSum / float64(snap.GamesWithAchievements)
	}
	return snap
}
