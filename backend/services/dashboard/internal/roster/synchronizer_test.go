package roster

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"parkdash/backend/libs/clock"
	"parkdash/backend/services/dashboard/internal/models"
)

type gatedFetcher struct {
	calls   atomic.Int32
	release chan struct{}
	entries []models.RosterEntry
	err     error
}

func newGatedFetcher(entries ...models.RosterEntry) *gatedFetcher {
	return &gatedFetcher{release: make(chan struct{}), entries: entries}
}

func (f *gatedFetcher) ListVehicles(ctx context.Context) ([]models.RosterEntry, error) {
	f.calls.Add(1)
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return f.entries, f.err
}

type instantFetcher struct {
	entries []models.RosterEntry
	err     error
}

func (f instantFetcher) ListVehicles(context.Context) ([]models.RosterEntry, error) {
	return f.entries, f.err
}

type recordingTarget struct {
	mu      sync.Mutex
	rosters [][]models.RosterEntry
}

func (r *recordingTarget) ReplaceRoster(entries []models.RosterEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rosters = append(r.rosters, entries)
}

func (r *recordingTarget) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rosters)
}

func entry(reg string) models.RosterEntry {
	return models.RosterEntry{Vehicle: models.NewVehicleID(reg, "PL"), Floor: 1, Spot: models.UnknownSpot}
}

func TestTriggersDuringFetchCoalesceIntoOneFollowUp(t *testing.T) {
	fetcher := newGatedFetcher(entry("WA12345"))
	target := &recordingTarget{}
	syncer := NewSynchronizer(context.Background(), fetcher, target, zaptest.NewLogger(t))
	t.Cleanup(syncer.Close)

	syncer.Trigger("entry")
	require.Eventually(t, func() bool { return fetcher.calls.Load() == 1 }, time.Second, time.Millisecond)

	for i := 0; i < 5; i++ {
		syncer.Trigger("exit")
	}
	assert.Equal(t, uint64(4), syncer.Status().Coalesced)
	assert.True(t, syncer.Status().InFlight)

	fetcher.release <- struct{}{}
	require.Eventually(t, func() bool { return fetcher.calls.Load() == 2 }, time.Second, time.Millisecond)
	fetcher.release <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, syncer.Wait(ctx))

	assert.Equal(t, int32(2), fetcher.calls.Load())
	assert.Equal(t, 2, target.count())
	assert.False(t, syncer.Status().InFlight)
}

func TestResultDiscardedAfterDetach(t *testing.T) {
	fetcher := newGatedFetcher(entry("WA12345"))
	target := &recordingTarget{}
	ctx, cancel := context.WithCancel(context.Background())
	syncer := NewSynchronizer(ctx, fetcher, target, zaptest.NewLogger(t))

	syncer.Trigger("login")
	require.Eventually(t, func() bool { return fetcher.calls.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	syncer.Close()
	assert.Equal(t, 0, target.count())

	syncer.Trigger("entry")
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.ErrorIs(t, syncer.Refresh(context.Background()), models.ErrSessionClosed)
}

func TestRefreshReportsFetchError(t *testing.T) {
	target := &recordingTarget{}
	boom := errors.New("backend unavailable")
	syncer := NewSynchronizer(context.Background(), instantFetcher{err: boom}, target, zaptest.NewLogger(t))
	t.Cleanup(syncer.Close)

	err := syncer.Refresh(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, target.count())

	st := syncer.Status()
	assert.Equal(t, "backend unavailable", st.LastError)
	assert.Zero(t, st.Refreshes)
}

func TestRefreshReplacesRoster(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	target := &recordingTarget{}
	syncer := NewSynchronizer(context.Background(),
		instantFetcher{entries: []models.RosterEntry{entry("WA12345"), entry("KR98765")}},
		target, zaptest.NewLogger(t), WithClock(clock.NewFixed(now)))
	t.Cleanup(syncer.Close)

	require.NoError(t, syncer.Refresh(context.Background()))
	require.Equal(t, 1, target.count())
	assert.Len(t, target.rosters[0], 2)

	st := syncer.Status()
	assert.Equal(t, uint64(1), st.Refreshes)
	assert.Equal(t, now, st.LastRefreshAt)
	assert.Empty(t, st.LastError)
}

func TestWaitHonoursContext(t *testing.T) {
	fetcher := newGatedFetcher()
	syncer := NewSynchronizer(context.Background(), fetcher, &recordingTarget{}, zaptest.NewLogger(t))
	t.Cleanup(func() {
		close(fetcher.release)
		syncer.Close()
	})

	syncer.Trigger("entry")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, syncer.Wait(ctx), context.DeadlineExceeded)
}
