package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestNewState(t *testing.T) {
	s := NewState()

	assert.NotEmpty(t, s.ID())
	assert.True(t, s.Active())
	assert.False(t, s.Started())
	assert.Equal(t, PhaseIdle, s.Phase())

	_, ok := s.StartTime()
	assert.False(t, ok)

	_, ok = s.RemainingMinutes()
	assert.False(t, ok, "remaining must be undefined before selection")
}

func TestRemainingMinutes_AfterSelection(t *testing.T) {
	for _, d := range []int{1, 30, 60, 359, 360} {
		clock := newFakeClock()
		s := NewState(WithClock(clock.Now))
		s.SetDuration(d)

		got, ok := s.RemainingMinutes()
		require.True(t, ok)
		assert.Greater(t, got, d-1)
		assert.LessOrEqual(t, got, d)

		clock.Advance(500 * time.Millisecond)
		got, ok = s.RemainingMinutes()
		require.True(t, ok)
		assert.Equal(t, d-1, got, "remaining is truncated toward zero")
	}
}

func TestRemainingMinutes_NonIncreasing(t *testing.T) {
	clock := newFakeClock()
	s := NewState(WithClock(clock.Now))
	s.SetDuration(3)

	prev, ok := s.RemainingMinutes()
	require.True(t, ok)
	for i := 0; i < 20; i++ {
		clock.Advance(17 * time.Second)
		got, ok := s.RemainingMinutes()
		require.True(t, ok)
		assert.LessOrEqual(t, got, prev)
		prev = got
	}
	assert.LessOrEqual(t, prev, 0, "expired session reports zero or negative")
}

func TestExtend(t *testing.T) {
	s := NewState()
	s.SetDuration(60)

	assert.Equal(t, 90, s.Extend(30))
	assert.Equal(t, 90, s.Duration())
}

func TestExtendWithin(t *testing.T) {
	tests := []struct {
		name      string
		duration  int
		delta     int
		max       int
		wantTotal int
		wantOK    bool
	}{
		{name: "well under cap", duration: 60, delta: 30, max: 360, wantTotal: 90, wantOK: true},
		{name: "exactly at cap", duration: 330, delta: 30, max: 360, wantTotal: 360, wantOK: true},
		{name: "over cap", duration: 340, delta: 30, max: 360, wantTotal: 340, wantOK: false},
		{name: "already at cap", duration: 360, delta: 30, max: 360, wantTotal: 360, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState()
			s.SetDuration(tt.duration)

			total, ok := s.ExtendWithin(tt.delta, tt.max)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantTotal, total)
			assert.Equal(t, tt.wantTotal, s.Duration())
		})
	}
}

func TestBeginSelection_OneShot(t *testing.T) {
	s := NewState()

	require.True(t, s.BeginSelection(60))
	assert.Equal(t, PhaseProvisioning, s.Phase())

	assert.False(t, s.BeginSelection(120))
	assert.Equal(t, 60, s.Duration(), "rejected selection must not change duration")
}

func TestBeginSelection_AfterStarted(t *testing.T) {
	s := NewState()
	s.MarkStarted()

	assert.False(t, s.BeginSelection(60))
	_, ok := s.StartTime()
	assert.False(t, ok)
}

func TestBeginSelection_Concurrent(t *testing.T) {
	s := NewState()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.BeginSelection(60) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestStop_OnlyOnce(t *testing.T) {
	s := NewState()

	assert.True(t, s.Stop())
	assert.False(t, s.Stop())
	assert.False(t, s.Active())
	assert.Equal(t, PhaseStopped, s.Phase())
}

func TestSetEndpoints_OneShot(t *testing.T) {
	s := NewState()

	assert.True(t, s.SetEndpoints(Endpoints{RemoteID: "123456789"}))
	assert.False(t, s.SetEndpoints(Endpoints{RemoteID: "other"}))

	snap := s.Snapshot()
	require.NotNil(t, snap.Endpoints)
	assert.Equal(t, "123456789", snap.Endpoints.RemoteID)
}

func TestSnapshot(t *testing.T) {
	clock := newFakeClock()
	s := NewState(WithClock(clock.Now))
	require.True(t, s.BeginSelection(120))
	s.MarkStarted()
	s.SetEndpoints(Endpoints{RemoteID: "42", RemotePassword: "secret12"})
	s.SetError("boom")

	snap := s.Snapshot()
	assert.Equal(t, s.ID(), snap.AgentID)
	assert.Equal(t, PhaseActive, snap.Phase)
	assert.Equal(t, 120, snap.Duration)
	assert.True(t, snap.Started)
	assert.True(t, snap.Active)
	assert.Equal(t, "boom", snap.Error)
	require.NotNil(t, snap.StartTime)
	assert.Equal(t, clock.Now(), *snap.StartTime)

	// The snapshot is a copy.
	snap.Endpoints.RemoteID = "changed"
	assert.Equal(t, "42", s.Snapshot().Endpoints.RemoteID)
}
