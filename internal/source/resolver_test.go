package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosspromo-engine/internal/freshness"
	"crosspromo-engine/internal/icons"
	"crosspromo-engine/internal/model"
	"crosspromo-engine/internal/store"
)

const configWithOneCampaign = `{
  "versionInfo": {"apiVersion": "1"},
  "campaigns": [{
    "id": "c1",
    "name": "Puzzle Game",
    "status": "active",
    "targetProject": {
      "projectId": "p1",
      "storeIds": {"android": "com.example.puzzle"}
    }
  }]
}`

type fakeIcons struct {
	mu    sync.Mutex
	calls int
	done  chan struct{}
}

func (f *fakeIcons) FetchAllMissing(_ context.Context, _ []model.Campaign) icons.BatchResult {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	select {
	case f.done <- struct{}{}:
	default:
	}
	return icons.BatchResult{}
}

type stubProvider struct {
	name    string
	payload []byte
	err     error
	block   chan struct{}
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) FetchConfig(ctx context.Context) ([]byte, error) {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return p.payload, p.err
}

type harness struct {
	resolver *Resolver
	files    *store.FileStore
	fresh    *freshness.Tracker
	icons    *fakeIcons
}

func newHarness(t *testing.T, apiURL string) *harness {
	t.Helper()
	h := &harness{
		files: store.New(filepath.Join(t.TempDir(), "cross_promo_server.json")),
		fresh: freshness.New(),
		icons: &fakeIcons{done: make(chan struct{}, 8)},
	}
	h.resolver = NewResolver(Config{
		APIBaseURL: apiURL,
		ProjectID:  "proj-1",
		Token:      "test-token",
		Timeout:    2 * time.Second,
	}, h.files, h.icons, h.fresh)
	return h
}

func apiServer(t *testing.T, response func() string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(response()))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestSync_APISuccess(t *testing.T) {
	ts := apiServer(t, func() string {
		return `{"found":true,"project":{"boostops_config":` + configWithOneCampaign + `}}`
	})
	h := newHarness(t, ts.URL)

	snap, err := h.resolver.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.SourceAPI, snap.Metadata.Source)
	assert.Equal(t, 1, snap.Metadata.Revision)
	assert.NotEmpty(t, snap.Metadata.RunID)
	require.Len(t, snap.Document.Campaigns, 1)
	assert.Equal(t, StateSuccess, h.resolver.State())

	// persisted
	doc, meta, ok := h.files.Load()
	require.True(t, ok)
	assert.Equal(t, snap.Document, doc)
	assert.Equal(t, snap.Metadata, meta)

	// icon fetch fired without blocking the sync call
	select {
	case <-h.icons.done:
	case <-time.After(time.Second):
		t.Fatal("icon batch was not triggered")
	}

	assert.True(t, h.fresh.IsStale())
}

func TestSync_QuotedConfigString(t *testing.T) {
	ts := apiServer(t, func() string {
		return `{"found":true,"project":{"boostops_config":"{\"campaigns\":[{\"id\":\"c1\",\"status\":\"active\",\"targetProject\":{\"storeIds\":{\"android\":\"com.example.puzzle\"}}}]}"}}`
	})
	h := newHarness(t, ts.URL)

	snap, err := h.resolver.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Document.Campaigns, 1)
}

func TestSync_EmptyPayloadKeepsCachedState(t *testing.T) {
	response := `{"found":true,"project":{"boostops_config":` + configWithOneCampaign + `}}`
	ts := apiServer(t, func() string { return response })
	h := newHarness(t, ts.URL)

	first, err := h.resolver.Sync(context.Background())
	require.NoError(t, err)

	// API now reports an empty campaign list: treated as "no update"
	response = `{"found":true,"project":{"boostops_config":"{\"campaigns\":[]}"}}`

	second, err := h.resolver.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Document, second.Document)
	assert.Equal(t, first.Metadata, second.Metadata, "sync metadata must not advance on an empty fetch")

	doc, meta, ok := h.files.Load()
	require.True(t, ok)
	assert.Equal(t, first.Document, doc)
	assert.Equal(t, first.Metadata, meta)
}

func TestSync_FallsBackToProvider(t *testing.T) {
	ts := apiServer(t, func() string { return `{"found":false}` })
	h := newHarness(t, ts.URL)
	h.resolver.RegisterProvider(&stubProvider{name: "feature-flags", payload: []byte(configWithOneCampaign)})

	snap, err := h.resolver.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SourceRemoteConfig, snap.Metadata.Source)
	require.Len(t, snap.Document.Campaigns, 1)
}

func TestSync_UnauthenticatedSkipsAPI(t *testing.T) {
	h := newHarness(t, "http://localhost:9")
	h.resolver.cfg.Token = ""
	h.resolver.RegisterProvider(&stubProvider{name: "feature-flags", payload: []byte(configWithOneCampaign)})

	snap, err := h.resolver.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SourceRemoteConfig, snap.Metadata.Source)
}

func TestSync_MalformedPayloadSurfacesSentinel(t *testing.T) {
	ts := apiServer(t, func() string { return `{"found":false}` })
	h := newHarness(t, ts.URL)
	h.resolver.RegisterProvider(&stubProvider{name: "feature-flags", payload: []byte(`<html>not json</html>`)})

	_, err := h.resolver.Sync(context.Background())
	assert.ErrorIs(t, err, ErrMalformedPayload)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestSync_AllSourcesFailNoBackup(t *testing.T) {
	ts := apiServer(t, func() string { return `{"found":false}` })
	h := newHarness(t, ts.URL)
	h.resolver.RegisterProvider(&stubProvider{name: "feature-flags", err: errors.New("flag service down")})

	_, err := h.resolver.Sync(context.Background())
	assert.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, StateFailed, h.resolver.State())
}

func TestSync_BackupFallback(t *testing.T) {
	seeded, err := model.ParseDocument([]byte(configWithOneCampaign))
	require.NoError(t, err)
	meta := model.SyncMetadata{Source: model.SourceAPI, Timestamp: time.Now().UTC().Truncate(time.Second), Revision: 7, RunID: "old-run"}

	ts := apiServer(t, func() string { return `{"found":false}` })
	h := newHarness(t, ts.URL)
	require.NoError(t, h.files.Save(seeded, meta))

	snap, err := h.resolver.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, meta, snap.Metadata, "backup fallback keeps the original sync metadata")
	assert.Equal(t, StateSuccess, h.resolver.State())
}

func TestSync_RejectsConcurrentCalls(t *testing.T) {
	ts := apiServer(t, func() string { return `{"found":false}` })
	h := newHarness(t, ts.URL)

	block := make(chan struct{})
	h.resolver.RegisterProvider(&stubProvider{name: "slow", payload: []byte(configWithOneCampaign), block: block})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := h.resolver.Sync(context.Background())
		assert.NoError(t, err)
	}()

	// wait until the first sync is inside the provider call
	require.Eventually(t, func() bool { return h.resolver.State() == StateFetching }, time.Second, 5*time.Millisecond)

	_, err := h.resolver.Sync(context.Background())
	assert.ErrorIs(t, err, ErrSyncInFlight)

	close(block)
	wg.Wait()
	assert.Equal(t, StateSuccess, h.resolver.State())
}

func TestBootstrap(t *testing.T) {
	seeded, err := model.ParseDocument([]byte(configWithOneCampaign))
	require.NoError(t, err)
	meta := model.SyncMetadata{Source: model.SourceRemoteConfig, Revision: 4}

	h := newHarness(t, "http://localhost:9")
	require.NoError(t, h.files.Save(seeded, meta))

	require.True(t, h.resolver.Bootstrap())
	snap, ok := h.resolver.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 4, snap.Metadata.Revision)
	assert.Len(t, snap.Document.Campaigns, 1)

	empty := newHarness(t, "http://localhost:9")
	assert.False(t, empty.resolver.Bootstrap())
}

func TestSetCampaignNameIfEmpty(t *testing.T) {
	seeded, err := model.ParseDocument([]byte(configWithOneCampaign))
	require.NoError(t, err)
	seeded.Campaigns[0].Name = ""

	h := newHarness(t, "http://localhost:9")
	require.NoError(t, h.files.Save(seeded, model.SyncMetadata{Revision: 1}))
	require.True(t, h.resolver.Bootstrap())

	h.resolver.SetCampaignNameIfEmpty(0, "Harvested Name")
	snap, _ := h.resolver.Snapshot()
	assert.Equal(t, "Harvested Name", snap.Document.Campaigns[0].Name)

	// a set name is never overwritten
	h.resolver.SetCampaignNameIfEmpty(0, "Other")
	snap, _ = h.resolver.Snapshot()
	assert.Equal(t, "Harvested Name", snap.Document.Campaigns[0].Name)

	// out-of-range index is a no-op
	h.resolver.SetCampaignNameIfEmpty(99, "Nope")
}

func TestReplaceDocument_GuardedAgainstEmpty(t *testing.T) {
	seeded, err := model.ParseDocument([]byte(configWithOneCampaign))
	require.NoError(t, err)

	h := newHarness(t, "http://localhost:9")
	require.NoError(t, h.files.Save(seeded, model.SyncMetadata{Revision: 1}))
	require.True(t, h.resolver.Bootstrap())

	err = h.resolver.ReplaceDocument(model.CampaignDocument{})
	assert.ErrorIs(t, err, store.ErrEmptyDocument)

	snap, _ := h.resolver.Snapshot()
	assert.Len(t, snap.Document.Campaigns, 1, "snapshot untouched after refused replace")
}
