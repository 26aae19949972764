package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the single mutable session record shared by the poll loop, the
// provisioning goroutine and the monitor loop. Every method takes the same
// mutex; compound check-then-act sequences are single methods so callers never
// hold the lock across calls.
type State struct {
	mu sync.Mutex

	id        string
	now       func() time.Time
	duration  int
	startTime *time.Time
	active    bool
	started   bool
	claimed   bool // a provisioning attempt has been handed out
	endpoints *Endpoints
	err       string
}

// Option configures a State
type Option func(*State)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// NewState returns an active session with nothing selected yet.
func NewState(opts ...Option) *State {
	s := &State{
		id:     uuid.NewString(),
		now:    time.Now,
		active: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the agent-local identifier of this session.
func (s *State) ID() string {
	return s.id
}

// SetDuration sets the allotted minutes and records the start time.
func (s *State) SetDuration(minutes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setDurationLocked(minutes)
}

func (s *State) setDurationLocked(minutes int) {
	now := s.now()
	s.duration = minutes
	s.startTime = &now
}

// BeginSelection claims the one provisioning attempt of this session and sets
// the duration. It returns false, changing nothing, if an attempt was already
// claimed or the session already started.
func (s *State) BeginSelection(minutes int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.claimed {
		return false
	}
	s.claimed = true
	s.setDurationLocked(minutes)
	return true
}

// Extend adds minutes to the duration and returns the new total. It does not
// enforce any ceiling.
func (s *State) Extend(minutes int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duration += minutes
	return s.duration
}

// ExtendWithin extends the duration only if the result stays within max.
func (s *State) ExtendWithin(minutes, max int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.duration+minutes > max {
		return s.duration, false
	}
	s.duration += minutes
	return s.duration, true
}

// RemainingMinutes returns the whole minutes left, truncated toward zero.
// The second result is false until a duration has been selected. The value
// may be zero or negative once the session has expired.
func (s *State) RemainingMinutes() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remainingLocked()
}

func (s *State) remainingLocked() (int, bool) {
	if s.startTime == nil || s.duration <= 0 {
		return 0, false
	}
	elapsed := s.now().Sub(*s.startTime).Minutes()
	return int(float64(s.duration) - elapsed), true
}

// MarkStarted records successful provisioning. Idempotent.
func (s *State) MarkStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
}

// SetEndpoints stores the endpoint record. Only the first call has effect.
func (s *State) SetEndpoints(e Endpoints) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.endpoints != nil {
		return false
	}
	s.endpoints = &e
	return true
}

// SetError records the last fatal error.
func (s *State) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = msg
}

// Stop flips the session to inactive. Only the call that performs the
// transition returns true.
func (s *State) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return false
	}
	s.active = false
	return true
}

// Active reports whether the session has not been stopped.
func (s *State) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Started reports whether provisioning has completed.
func (s *State) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Duration returns the allotted minutes.
func (s *State) Duration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// StartTime returns when the duration was first selected.
func (s *State) StartTime() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.startTime == nil {
		return time.Time{}, false
	}
	return *s.startTime, true
}

// Phase derives the lifecycle phase from the current flags.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phaseLocked()
}

func (s *State) phaseLocked() Phase {
	switch {
	case !s.active:
		return PhaseStopped
	case s.started:
		return PhaseActive
	case s.claimed || s.startTime != nil:
		return PhaseProvisioning
	default:
		return PhaseIdle
	}
}

// Snapshot copies the record under the lock.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		AgentID:   s.id,
		Phase:     s.phaseLocked(),
		Duration:  s.duration,
		Active:    s.active,
		Started:   s.started,
		Error:     s.err,
		UpdatedAt: s.now(),
	}
	if s.startTime != nil {
		t := *s.startTime
		snap.StartTime = &t
	}
	if s.endpoints != nil {
		e := *s.endpoints
		snap.Endpoints = &e
	}
	return snap
}
