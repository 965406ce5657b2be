package verify

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosspromo-engine/internal/storeid"
)

type fakeChecker struct {
	mu     sync.Mutex
	calls  []string
	result Result
	err    error
	block  chan struct{} // when set, Check waits for it before returning
	count  atomic.Int32
}

func (f *fakeChecker) Check(_ context.Context, _ storeid.Platform, value string) (Result, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.calls = append(f.calls, value)
	f.mu.Unlock()
	f.count.Add(1)
	if f.err != nil {
		return Result{}, f.err
	}
	return f.result, nil
}

func (f *fakeChecker) values() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestService(t *testing.T, checker Checker) *Service {
	t.Helper()
	s := NewService(
		Config{Debounce: 40 * time.Millisecond, CheckTimeout: time.Second},
		checker,
		NewRecordStore(filepath.Join(t.TempDir(), "verification.json")),
	)
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestRequestVerify_DebounceCoalesces(t *testing.T) {
	checker := &fakeChecker{result: Result{Status: StatusVerified, Tier: TierConfirmed}}
	s := newTestService(t, checker)

	// burst of calls inside the window: one check, for the last value
	s.RequestVerify(storeid.Apple, 0, "529479190")
	s.RequestVerify(storeid.Apple, 0, "5294791901")
	s.RequestVerify(storeid.Apple, 0, "529479190")

	waitFor(t, func() bool { return checker.count.Load() == 1 })
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, []string{"529479190"}, checker.values())

	rec, ok := s.Record(storeid.Apple, 0)
	require.True(t, ok)
	assert.True(t, rec.Verified)
	assert.Equal(t, StatusVerified, rec.Status)
	assert.Equal(t, "529479190", rec.LastVerifiedValue)
}

func TestRequestVerify_UnchangedValueSkipsCheck(t *testing.T) {
	checker := &fakeChecker{result: Result{Status: StatusFailed}}
	s := newTestService(t, checker)

	s.RequestVerify(storeid.Google, 1, "com.example.app")
	waitFor(t, func() bool { return checker.count.Load() == 1 })

	// same value again: cached result re-emitted, no second check
	s.RequestVerify(storeid.Google, 1, "com.example.app")
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(1), checker.count.Load())
}

func TestRequestVerify_EmptyValueClearsWithoutCheck(t *testing.T) {
	checker := &fakeChecker{result: Result{Status: StatusVerified}}
	s := newTestService(t, checker)

	s.RequestVerify(storeid.Apple, 2, "529479190")
	waitFor(t, func() bool { return checker.count.Load() == 1 })

	s.RequestVerify(storeid.Apple, 2, "")
	_, ok := s.Record(storeid.Apple, 2)
	assert.False(t, ok)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), checker.count.Load(), "clearing must not trigger a check")
}

func TestRequestVerify_InFlightResultDiscardedWhenSuperseded(t *testing.T) {
	checker := &fakeChecker{result: Result{Status: StatusVerified}, block: make(chan struct{})}
	s := newTestService(t, checker)

	s.RequestVerify(storeid.Apple, 0, "111111111")
	// let the first check start, then supersede it while in flight
	time.Sleep(80 * time.Millisecond)
	s.RequestVerify(storeid.Apple, 0, "222222222")
	close(checker.block)

	waitFor(t, func() bool { return checker.count.Load() == 2 })
	waitFor(t, func() bool {
		rec, ok := s.Record(storeid.Apple, 0)
		return ok && rec.Status == StatusVerified && rec.LastVerifiedValue == "222222222"
	})
}

func TestRequestVerify_CheckerErrorResolvesToFailed(t *testing.T) {
	checker := &fakeChecker{err: context.DeadlineExceeded}
	s := newTestService(t, checker)

	s.RequestVerify(storeid.Amazon, 0, "B01LYKLP4O")
	waitFor(t, func() bool {
		rec, ok := s.Record(storeid.Amazon, 0)
		return ok && rec.Status == StatusFailed
	})

	rec, _ := s.Record(storeid.Amazon, 0)
	assert.False(t, rec.Verified)
}

func TestRecords_PersistAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verification.json")
	checker := &fakeChecker{result: Result{Status: StatusVerified, Tier: TierConfirmed}}

	s := NewService(Config{Debounce: 20 * time.Millisecond}, checker, NewRecordStore(path))
	s.RequestVerify(storeid.Apple, 0, "529479190")
	waitFor(t, func() bool { return checker.count.Load() == 1 })
	waitFor(t, func() bool {
		rec, ok := s.Record(storeid.Apple, 0)
		return ok && rec.Status == StatusVerified
	})
	s.Close()

	// new service instance, same file: unchanged value is not re-verified
	s2 := NewService(Config{Debounce: 20 * time.Millisecond}, checker, NewRecordStore(path))
	defer s2.Close()

	rec, ok := s2.Record(storeid.Apple, 0)
	require.True(t, ok)
	assert.Equal(t, "529479190", rec.LastVerifiedValue)

	s2.RequestVerify(storeid.Apple, 0, "529479190")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), checker.count.Load())
}

func TestArtworkURL_FromVerifiedRecord(t *testing.T) {
	checker := &fakeChecker{result: Result{
		Status:        StatusVerified,
		Tier:          TierConfirmed,
		CanonicalName: "Example App",
		IconURL:       "https://cdn.example.com/icon512.png",
	}}
	s := newTestService(t, checker)

	s.RequestVerify(storeid.Apple, 0, "id529479190")
	waitFor(t, func() bool {
		rec, ok := s.Record(storeid.Apple, 0)
		return ok && rec.Status == StatusVerified
	})

	// lookup normalizes, so the prefixed input still matches
	url, ok := s.ArtworkURL("529479190")
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/icon512.png", url)

	_, ok = s.ArtworkURL("111111111")
	assert.False(t, ok)
}

func TestKey_TextRoundTrip(t *testing.T) {
	k := Key{Campaign: 3, Platform: storeid.Apple}
	text, err := k.MarshalText()
	require.NoError(t, err)

	var back Key
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, k, back)
}
