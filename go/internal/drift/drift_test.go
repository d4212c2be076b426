package drift

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/respawn/go/internal/models"
	"github.com/mcdev12/respawn/go/internal/timers"
	"github.com/mcdev12/respawn/go/internal/timers/memory"
)

type intervals map[string]time.Duration

func (i intervals) Interval(name string) (time.Duration, bool) {
	d, ok := i[name]
	return d, ok
}

type fakeStore struct {
	mu        sync.Mutex
	reachable bool
	err       error
	attempts  int
	updates   []models.Timer
}

func (s *fakeStore) Update(_ context.Context, _ timers.RoomKey, t models.Timer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, t)
	return nil
}

func (s *fakeStore) tries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *fakeStore) Reachable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reachable
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func TestCorrect(t *testing.T) {
	kill := base.UnixMilli()
	spawn := base.Add(2 * time.Hour).UnixMilli()
	tm := models.Timer{ID: "a", EntityName: "dragon", KillTime: kill, NextSpawn: spawn}

	tests := []struct {
		name      string
		interval  time.Duration
		tolerance time.Duration
		now       time.Time
		changed   bool
		want      time.Time
	}{
		{
			name:      "one interval rollover",
			interval:  2 * time.Hour,
			tolerance: 5 * time.Minute,
			now:       base.Add(2*time.Hour + 50*time.Minute),
			changed:   true,
			want:      base.Add(4 * time.Hour),
		},
		{
			name:      "several intervals",
			interval:  2 * time.Hour,
			tolerance: 5 * time.Minute,
			now:       base.Add(7 * time.Hour),
			changed:   true,
			want:      base.Add(8 * time.Hour),
		},
		{
			name:      "inside tolerance",
			interval:  2 * time.Hour,
			tolerance: 30 * time.Minute,
			now:       base.Add(2*time.Hour + 30*time.Minute),
		},
		{
			name:      "not yet spawned",
			interval:  2 * time.Hour,
			tolerance: 0,
			now:       base.Add(time.Hour),
		},
		{
			name:      "zero interval",
			interval:  0,
			tolerance: 0,
			now:       base.Add(10 * time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := Correct(tm, tt.interval, tt.tolerance, tt.now)
			assert.Equal(t, tt.changed, changed)
			if !tt.changed {
				assert.Equal(t, tm, got)
				return
			}
			assert.Equal(t, tt.want.UnixMilli(), got.NextSpawn)
			assert.Equal(t, kill, got.KillTime)
			assert.Equal(t, models.NoteLost, got.Note)
			assert.True(t, got.IsPass)
			assert.GreaterOrEqual(t, got.NextSpawn+tt.tolerance.Milliseconds(), tt.now.UnixMilli())
		})
	}
}

func TestCorrect_Idempotent(t *testing.T) {
	tm := models.Timer{ID: "a", EntityName: "dragon", KillTime: 0, NextSpawn: base.UnixMilli()}
	now := base.Add(11*time.Hour + 17*time.Minute)

	once, changed := Correct(tm, 3*time.Hour+30*time.Minute, 30*time.Minute, now)
	require.True(t, changed)

	twice, changed := Correct(once, 3*time.Hour+30*time.Minute, 30*time.Minute, now)
	assert.False(t, changed)
	assert.Equal(t, once, twice)
}

func TestCorrector_Sweep(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base.Add(5 * time.Hour))
	store := &fakeStore{reachable: true}
	c := New(intervals{"dragon": 2 * time.Hour}, store, WithClock(clock), WithTolerance(5*time.Minute))

	ts := []models.Timer{
		{ID: "a", EntityName: "dragon", NextSpawn: base.UnixMilli()},
		{ID: "b", EntityName: "mystery", NextSpawn: base.UnixMilli()},
		{ID: "c", EntityName: "dragon", NextSpawn: base.Add(5 * time.Hour).UnixMilli()},
	}

	n, err := c.Sweep(context.Background(), "main", ts)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, store.updates, 1)
	assert.Equal(t, "a", store.updates[0].ID)
	assert.Equal(t, base.Add(6*time.Hour).UnixMilli(), store.updates[0].NextSpawn)
}

func TestCorrector_RunOnlyWhileReachable(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base.Add(5 * time.Hour))
	store := &fakeStore{reachable: false}
	c := New(intervals{"dragon": 2 * time.Hour}, store, WithClock(clock), WithInterval(time.Second))

	source := func() []models.Timer {
		return []models.Timer{{ID: "a", EntityName: "dragon", NextSpawn: base.UnixMilli()}}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, "main", source)
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, store.count())

	store.mu.Lock()
	store.reachable = true
	store.mu.Unlock()

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return store.count() >= 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestCorrector_SweepStopsOnAccessDenied(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base.Add(5 * time.Hour))
	store := &fakeStore{reachable: true, err: fmt.Errorf("%w: read only", timers.ErrAccessDenied)}
	c := New(intervals{"dragon": 2 * time.Hour}, store, WithClock(clock), WithTolerance(5*time.Minute))

	ts := []models.Timer{
		{ID: "a", EntityName: "dragon", NextSpawn: base.UnixMilli()},
		{ID: "b", EntityName: "dragon", NextSpawn: base.Add(time.Minute).UnixMilli()},
	}

	n, err := c.Sweep(context.Background(), "main", ts)
	assert.Equal(t, 0, n)
	assert.True(t, timers.IsAccessDenied(err))
	assert.Equal(t, 1, store.tries())
}

func TestCorrector_RunReportsDeniedWritesAndHonoursGate(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base.Add(5 * time.Hour))
	store := &fakeStore{reachable: true, err: fmt.Errorf("%w: read only", timers.ErrAccessDenied)}
	c := New(intervals{"dragon": 2 * time.Hour}, store, WithClock(clock), WithInterval(time.Second))

	source := func() []models.Timer {
		return []models.Timer{{ID: "a", EntityName: "dragon", NextSpawn: base.UnixMilli()}}
	}

	var (
		mu     sync.Mutex
		denied bool
		errs   []error
	)
	gate := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return !denied
	}
	sink := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		denied = true
		errs = append(errs, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx, "main", source, GateOn(gate), ReportTo(sink))

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return !gate() }, time.Second, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
	}
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, store.tries())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errs, 1)
	assert.True(t, timers.IsAccessDenied(errs[0]))
}

func TestCorrector_ConcurrentSweepsConverge(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(base.Add(5 * time.Hour))
	store := timers.NewStore(memory.New())
	catalog := intervals{"dragon": 2 * time.Hour, "giant": 3 * time.Hour}

	seed := []models.Timer{
		{ID: "a", EntityName: "dragon", KillTime: base.Add(-2 * time.Hour).UnixMilli(), NextSpawn: base.UnixMilli()},
		{ID: "b", EntityName: "giant", KillTime: base.Add(-3 * time.Hour).UnixMilli(), NextSpawn: base.UnixMilli()},
	}
	require.NoError(t, store.ReplaceAll(ctx, "main", seed))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		c := New(catalog, store, WithClock(clock), WithTolerance(5*time.Minute))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Sweep(ctx, "main", seed)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.List(ctx, "main")
	require.NoError(t, err)
	require.Len(t, got, 2)

	want := make(map[string]models.Timer, len(seed))
	for _, ts := range seed {
		next, _ := Correct(ts, catalog[ts.EntityName], 5*time.Minute, clock.Now())
		want[ts.ID] = next
	}
	for _, tm := range got {
		assert.Equal(t, want[tm.ID], tm)
		assert.Equal(t, models.NoteLost, tm.Note)
	}
}
