// Package source arbitrates between the three campaign data sources:
// the live API, a registered remote-config provider, and the
// last-known-good backup document. Later sources are tried only after
// a confirmed failure of the earlier ones, and an empty result is
// never allowed to replace good data.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"crosspromo-engine/internal/cache"
	"crosspromo-engine/internal/freshness"
	"crosspromo-engine/internal/icons"
	"crosspromo-engine/internal/model"
	"crosspromo-engine/internal/observability"
	"crosspromo-engine/internal/store"
)

var (
	// ErrSyncInFlight rejects re-entrant Sync calls; overlapping
	// fetches would corrupt the shared caches.
	ErrSyncInFlight = errors.New("sync already in progress")
	// ErrEmptyPayload marks a structurally valid payload with no
	// usable campaigns. Treated as "no update", never as "clear".
	ErrEmptyPayload = errors.New("payload contains no campaigns")
	// ErrMalformedPayload marks a payload that survived neither the
	// strict decode nor the schema-aware repair pass.
	ErrMalformedPayload = errors.New("payload is not a campaign document")
	// ErrNoData is surfaced only when every source is exhausted and
	// no backup was ever persisted.
	ErrNoData = errors.New("no campaign data available from any source")
)

type State int32

const (
	StateIdle State = iota
	StateFetching
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Provider is a registered remote-config capability. Collaborators
// that can serve the config payload register themselves at startup;
// the resolver never probes for their presence at runtime.
type Provider interface {
	Name() string
	// FetchConfig returns the raw config payload, either a JSON
	// object or a JSON-encoded string wrapping one.
	FetchConfig(ctx context.Context) ([]byte, error)
}

// IconFetcher is the icon batch surface the resolver triggers after a
// successful sync.
type IconFetcher interface {
	FetchAllMissing(ctx context.Context, campaigns []model.Campaign) icons.BatchResult
}

type Config struct {
	APIBaseURL string
	ProjectID  string
	Token      string // bearer; empty means unauthenticated, API source is skipped
	Timeout    time.Duration
}

// Snapshot pairs the current document with how it was obtained.
type Snapshot struct {
	Document model.CampaignDocument `json:"document"`
	Metadata model.SyncMetadata     `json:"metadata"`
}

type Resolver struct {
	cfg   Config
	httpc *http.Client
	files *store.FileStore
	icons IconFetcher
	fresh *freshness.Tracker

	mu        sync.Mutex
	state     State
	providers []Provider
	revision  int

	snap cache.Snapshot[Snapshot]
}

func NewResolver(cfg Config, files *store.FileStore, iconFetcher IconFetcher, fresh *freshness.Tracker) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Resolver{
		cfg:   cfg,
		httpc: &http.Client{Timeout: cfg.Timeout},
		files: files,
		icons: iconFetcher,
		fresh: fresh,
	}
}

// RegisterProvider adds a remote-config capability. Registration
// order is fallback order.
func (r *Resolver) RegisterProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
	log.Info().Str("provider", p.Name()).Msg("remote-config provider registered")
}

// Bootstrap restores the persisted document into the in-memory
// snapshot so consumers have data before the first sync completes.
func (r *Resolver) Bootstrap() bool {
	doc, meta, ok := r.files.Load()
	if !ok {
		return false
	}
	r.mu.Lock()
	r.revision = meta.Revision
	r.mu.Unlock()
	r.snap.Store(Snapshot{Document: doc, Metadata: meta})
	observability.SnapshotCampaigns.Set(float64(len(doc.Campaigns)))
	log.Info().Str("source", meta.Source).Time("synced_at", meta.Timestamp).Int("campaigns", len(doc.Campaigns)).Msg("restored cached campaign document")
	return true
}

// Snapshot returns the current document, if any source has produced one.
func (r *Resolver) Snapshot() (Snapshot, bool) {
	return r.snap.Load()
}

func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Sync runs the source precedence chain: API, then registered
// remote-config providers, then the backup document. Attempts are
// strictly sequential. Concurrent calls are rejected with
// ErrSyncInFlight.
func (r *Resolver) Sync(ctx context.Context) (Snapshot, error) {
	r.mu.Lock()
	if r.state == StateFetching {
		r.mu.Unlock()
		return Snapshot{}, ErrSyncInFlight
	}
	r.state = StateFetching
	r.mu.Unlock()

	snap, err := r.resolve(ctx)

	r.mu.Lock()
	if err != nil {
		r.state = StateFailed
	} else {
		r.state = StateSuccess
	}
	r.mu.Unlock()
	return snap, err
}

func (r *Resolver) resolve(ctx context.Context) (Snapshot, error) {
	var attempts []error

	if r.cfg.Token == "" || r.cfg.APIBaseURL == "" {
		log.Debug().Msg("not authenticated; skipping live API source")
	} else {
		doc, err := r.fetchAPI(ctx)
		if err == nil {
			observability.SyncAttempts.WithLabelValues(model.SourceAPI, "ok").Inc()
			return r.adopt(doc, model.SourceAPI), nil
		}
		observability.SyncAttempts.WithLabelValues(model.SourceAPI, outcome(err)).Inc()
		log.Warn().Err(err).Msg("live API fetch failed; trying remote config")
		attempts = append(attempts, fmt.Errorf("api: %w", err))
	}

	for _, p := range r.snapshotProviders() {
		doc, err := r.fetchProvider(ctx, p)
		if err == nil {
			observability.SyncAttempts.WithLabelValues(model.SourceRemoteConfig, "ok").Inc()
			return r.adopt(doc, model.SourceRemoteConfig), nil
		}
		observability.SyncAttempts.WithLabelValues(model.SourceRemoteConfig, outcome(err)).Inc()
		log.Warn().Err(err).Str("provider", p.Name()).Msg("remote-config fetch failed")
		attempts = append(attempts, fmt.Errorf("%s: %w", p.Name(), err))
	}

	if doc, meta, ok := r.files.Load(); ok && len(doc.Campaigns) > 0 {
		observability.SyncAttempts.WithLabelValues(model.SourceBackupFile, "ok").Inc()
		snap := Snapshot{Document: doc, Metadata: meta}
		r.snap.Store(snap)
		observability.SnapshotCampaigns.Set(float64(len(doc.Campaigns)))
		log.Info().Time("synced_at", meta.Timestamp).Msg("using cached campaign data")
		return snap, nil
	}

	observability.SyncAttempts.WithLabelValues(model.SourceBackupFile, "empty").Inc()
	attempts = append(attempts, ErrNoData)
	return Snapshot{}, errors.Join(attempts...)
}

// adopt installs a freshly fetched, non-empty document: snapshot,
// fire-and-forget icon fetch, guarded persistence, staleness mark.
func (r *Resolver) adopt(doc model.CampaignDocument, sourceName string) Snapshot {
	r.mu.Lock()
	r.revision++
	meta := model.SyncMetadata{
		Source:    sourceName,
		Timestamp: time.Now().UTC(),
		Revision:  r.revision,
		RunID:     uuid.NewString(),
	}
	r.mu.Unlock()

	snap := Snapshot{Document: doc, Metadata: meta}
	r.snap.Store(snap)
	observability.SnapshotCampaigns.Set(float64(len(doc.Campaigns)))

	if r.icons != nil {
		// Icon downloads must not block the sync call.
		go r.icons.FetchAllMissing(context.Background(), doc.Campaigns)
	}
	if err := r.files.Save(doc, meta); err != nil {
		log.Error().Err(err).Msg("persist synced document")
	}
	r.fresh.MarkDirty(fmt.Sprintf("campaign list updated from %s", sourceName))

	log.Info().Str("source", sourceName).Str("run_id", meta.RunID).Int("campaigns", len(doc.Campaigns)).Msg("sync succeeded")
	return snap
}

func (r *Resolver) snapshotProviders() []Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Provider(nil), r.providers...)
}

func (r *Resolver) fetchProvider(ctx context.Context, p Provider) (model.CampaignDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	raw, err := p.FetchConfig(ctx)
	if err != nil {
		return model.CampaignDocument{}, err
	}
	return parseConfigPayload(raw)
}

// parseConfigPayload turns a boostops_config value (object or quoted
// string) into a validated, non-empty document.
func parseConfigPayload(raw []byte) (model.CampaignDocument, error) {
	inner, err := model.UnquoteIfString(raw)
	if err != nil {
		return model.CampaignDocument{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(inner) == 0 {
		return model.CampaignDocument{}, ErrEmptyPayload
	}
	doc, err := model.ParseDocument(inner)
	if err != nil {
		return model.CampaignDocument{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(doc.Campaigns) == 0 {
		return model.CampaignDocument{}, ErrEmptyPayload
	}
	return doc, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrEmptyPayload):
		return "empty"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
