// Package jobs runs periodic housekeeping.
package jobs

import (
	"context"
	"fmt"
	"time"

	"clinic-portal-server/internal/store"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const runTimeout = time.Minute

// Scheduler wraps a cron runner with the portal's housekeeping jobs.
type Scheduler struct {
	cron          *cron.Cron
	refreshTokens store.RefreshTokenStore
	now           func() time.Time
}

// NewScheduler registers the refresh-token purge on schedule, a standard
// five-field cron expression.
func NewScheduler(schedule string, refreshTokens store.RefreshTokenStore) (*Scheduler, error) {
	s := &Scheduler{
		cron:          cron.New(),
		refreshTokens: refreshTokens,
		now:           time.Now,
	}
	if _, err := s.cron.AddFunc(schedule, s.runPurge); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Int("jobs", len(s.cron.Entries())).Msg("housekeeping scheduler started")
}

// Stop stops scheduling and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		log.Warn().Msg("housekeeping job still running at shutdown")
	}
}

func (s *Scheduler) runPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	n, err := PurgeRefreshTokens(ctx, s.refreshTokens, s.now())
	if err != nil {
		log.Error().Err(err).Msg("refresh token purge failed")
		return
	}
	log.Info().Int64("deleted", n).Msg("refresh token purge finished")
}

// PurgeRefreshTokens deletes refresh tokens that expired or were revoked
// before now.
func PurgeRefreshTokens(ctx context.Context, tokens store.RefreshTokenStore, now time.Time) (int64, error) {
	n, err := tokens.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return n, nil
}
