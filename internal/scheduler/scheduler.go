// Package scheduler drives periodic re-syncs so a long-running host
// session picks up remote campaign edits without a manual trigger.
package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"crosspromo-engine/internal/source"
)

type Config struct {
	Interval time.Duration // spacing between scheduled syncs
	Backoff  time.Duration // base retry delay after a failed sync
	Debounce time.Duration // quiet window coalescing external kicks
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 15 * time.Minute
	}
	if c.Backoff <= 0 {
		c.Backoff = 30 * time.Second
	}
	if c.Debounce <= 0 {
		c.Debounce = 2 * time.Second
	}
}

// Run loops until ctx is cancelled, syncing every Interval. A failed
// sync retries after a jittered backoff instead of waiting out the
// full interval. Kick asks for an immediate sync; bursts inside the
// debounce window collapse into one.
func Run(ctx context.Context, r *source.Resolver, cfg Config, kick <-chan struct{}) {
	cfg.applyDefaults()
	log.Info().Dur("interval", cfg.Interval).Msg("sync scheduler started")

	timer := time.NewTimer(cfg.Interval)
	defer timer.Stop()

	var lastKick time.Time
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sync scheduler stopped")
			return
		case <-kick:
			if time.Since(lastKick) < cfg.Debounce {
				continue // debounce burst of kicks
			}
			lastKick = time.Now()
		case <-timer.C:
		}

		next := cfg.Interval
		if _, err := r.Sync(ctx); err != nil {
			switch {
			case errors.Is(err, context.Canceled):
				return
			case errors.Is(err, source.ErrSyncInFlight):
				// another caller is already syncing; keep the
				// normal cadence
			default:
				next = jitter(cfg.Backoff)
				log.Error().Err(err).Dur("retry_in", next).Msg("scheduled sync failed")
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(next)
	}
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	factor := 0.5 + rand.Float64() // 0.5x-1.5x
	return time.Duration(float64(base) * factor)
}
