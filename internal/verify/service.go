// Package verify confirms that user-entered store identifiers resolve
// to real storefront listings, without spamming third-party endpoints:
// requests are debounced per field, results are cached and persisted,
// and all shared state is owned by a single worker goroutine.
package verify

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"crosspromo-engine/internal/observability"
	"crosspromo-engine/internal/storeid"
)

// Checker performs one live storefront check. Implementations must
// not retain value or mutate shared state.
type Checker interface {
	Check(ctx context.Context, platform storeid.Platform, value string) (Result, error)
}

// Result is what a checker reports back.
type Result struct {
	Status        Status
	Tier          Tier
	CanonicalName string
	IconURL       string
	Detail        string
}

type Config struct {
	Debounce     time.Duration // quiet period before a scheduled check runs
	CheckTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Debounce <= 0 {
		c.Debounce = 1500 * time.Millisecond
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = 10 * time.Second
	}
}

type job struct {
	key   Key
	value string
	gen   uint64
}

// Service owns the verification state maps. Debounce timers fire on
// background timers, but every check executes on the single worker
// goroutine and every map mutation happens under mu, so concurrent
// RequestVerify calls never corrupt shared state.
type Service struct {
	cfg     Config
	checker Checker
	store   *RecordStore

	// OnNameHarvest, when set, receives canonical app names found
	// during iOS lookups so empty campaign display names can be
	// auto-filled. Called off the service lock.
	OnNameHarvest func(campaign int, name string)

	mu      sync.Mutex
	records map[Key]Record
	timers  map[Key]*time.Timer
	gens    map[Key]uint64

	jobs chan job
	done chan struct{}
}

func NewService(cfg Config, checker Checker, store *RecordStore) *Service {
	cfg.applyDefaults()
	s := &Service{
		cfg:     cfg,
		checker: checker,
		store:   store,
		records: store.Load(),
		timers:  map[Key]*time.Timer{},
		gens:    map[Key]uint64{},
		jobs:    make(chan job, 64),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Close stops the worker. Pending debounce timers are cancelled;
// an in-flight check finishes but its result is discarded.
func (s *Service) Close() {
	s.mu.Lock()
	for k, t := range s.timers {
		t.Stop()
		delete(s.timers, k)
	}
	s.mu.Unlock()
	close(s.done)
}

// RequestVerify schedules a check for (campaign, platform) after the
// debounce window. A newer call for the same key replaces the pending
// timer and invalidates any in-flight check's result.
//
// Skip rules: an empty value clears the cached status immediately
// with no network call; a value equal to the last verified one with a
// completed result re-emits the cache and performs no call.
func (s *Service) RequestVerify(platform storeid.Platform, campaign int, rawValue string) {
	key := Key{Campaign: campaign, Platform: platform}
	value := strings.TrimSpace(rawValue)

	s.mu.Lock()

	if value == "" {
		s.gens[key]++
		s.stopTimer(key)
		if _, ok := s.records[key]; ok {
			delete(s.records, key)
			s.persistLocked()
		}
		s.mu.Unlock()
		return
	}

	if rec, ok := s.records[key]; ok && rec.LastVerifiedValue == value && rec.Status != StatusPending {
		s.mu.Unlock()
		log.Debug().Stringer("key", key).Msg("verification cache hit; skipping check")
		return
	}

	s.gens[key]++
	gen := s.gens[key]
	s.records[key] = Record{Platform: platform, LastVerifiedValue: value, Status: StatusPending}

	s.stopTimer(key)
	s.timers[key] = time.AfterFunc(s.cfg.Debounce, func() {
		select {
		case s.jobs <- job{key: key, value: value, gen: gen}:
		case <-s.done:
		}
	})
	s.mu.Unlock()
}

// Record returns the cached record for a key.
func (s *Service) Record(platform storeid.Platform, campaign int) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[Key{Campaign: campaign, Platform: platform}]
	return rec, ok
}

// ArtworkURL returns the icon URL a successful iOS lookup recorded
// for this store id, sparing icon resolution a second lookup call.
func (s *Service) ArtworkURL(iosID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, rec := range s.records {
		if k.Platform != storeid.Apple || !rec.Verified || rec.IconURL == "" {
			continue
		}
		if id, ok := storeid.NormalizeIOSID(rec.LastVerifiedValue); ok && id == iosID {
			return rec.IconURL, true
		}
	}
	return "", false
}

// Records returns a copy of all cached records.
func (s *Service) Records() map[Key]Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Key]Record, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

func (s *Service) run() {
	for {
		select {
		case <-s.done:
			return
		case j := <-s.jobs:
			s.execute(j)
		}
	}
}

func (s *Service) execute(j job) {
	s.mu.Lock()
	if s.gens[j.key] != j.gen {
		s.mu.Unlock()
		return // superseded while queued
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CheckTimeout)
	res, err := s.checker.Check(ctx, j.key.Platform, j.value)
	cancel()
	if err != nil {
		// Network trouble is logged and resolves to a failed check;
		// it never propagates to the caller.
		log.Warn().Err(err).Stringer("key", j.key).Msg("verification check error")
		res = Result{Status: StatusFailed, Detail: err.Error()}
	}

	s.mu.Lock()
	if s.gens[j.key] != j.gen {
		s.mu.Unlock()
		return // a newer request started while the check was in flight
	}
	rec := Record{
		Platform:          j.key.Platform,
		LastVerifiedValue: j.value,
		Verified:          res.Status == StatusVerified,
		Status:            res.Status,
		Tier:              res.Tier,
		CanonicalName:     res.CanonicalName,
		IconURL:           res.IconURL,
		Detail:            res.Detail,
		CheckedAt:         time.Now().UTC(),
	}
	s.records[j.key] = rec
	s.persistLocked()
	harvest := s.OnNameHarvest
	s.mu.Unlock()

	observability.VerifyChecks.WithLabelValues(string(j.key.Platform), string(res.Status)).Inc()
	log.Info().Stringer("key", j.key).Str("status", string(res.Status)).Str("tier", string(res.Tier)).Msg("verification completed")

	if harvest != nil && rec.Verified && rec.CanonicalName != "" {
		harvest(j.key.Campaign, rec.CanonicalName)
	}
}

// stopTimer requires s.mu held.
func (s *Service) stopTimer(key Key) {
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// persistLocked requires s.mu held. Pending entries are transient and
// not written out.
func (s *Service) persistLocked() {
	out := make(map[Key]Record, len(s.records))
	for k, v := range s.records {
		if v.Status == StatusPending {
			continue
		}
		out[k] = v
	}
	if err := s.store.Save(out); err != nil {
		log.Warn().Err(err).Msg("persist verification records")
	}
}
