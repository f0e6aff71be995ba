package scheduler

import (
	"context"
	"time"

	"github.com/overachiever/overachiever-web/internal/logger"
	"github.com/overachiever/overachiever-web/internal/scanqueue"
	"github.com/overachiever/overachiever-web/internal/services"
	syncengine "github.com/overachiever/overachiever-web/internal/sync"
)

// Scheduler periodically submits background scans for every known user.
// Rejections are expected when a user synced recently or already has an
// active scan, so they are only logged at debug level.
type Scheduler struct {
	orch     *syncengine.Orchestrator
	users    *services.UserService
	interval time.Duration
	log      *logger.Log
}

func New(orch *syncengine.Orchestrator, users *services.UserService, interval time.Duration, log *logger.Log) *Scheduler {
	return &Scheduler{
		orch:     orch,
		users:    users,
		interval: interval,
		log:      log,
	}
}

// Run blocks until ctx is cancelled, sweeping all users once per interval.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.interval.String()).Info("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Scheduler) sweep() {
	users, err := s.users.List()
	if err != nil {
		s.log.WithError(err).Error("scheduler failed to list users")
		return
	}

	var admitted int
	for _, u := range users {
		adm := s.orch.Request(u.SteamID, scanqueue.ReasonScheduled, "scheduler")
		switch adm.Status {
		case scanqueue.StatusAdmitted:
			admitted++
		default:
			s.log.WithField("user", u.SteamID).WithField("status", adm.Status.String()).
				Debug("scheduled scan not admitted")
		}
	}
	s.log.WithField("users", len(users)).WithField("admitted", admitted).Info("scheduled sweep complete")
}
