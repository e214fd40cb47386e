package safety

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/drorchestrator/backend-go/internal/domain"
)

// StopState is a point-in-time view of the emergency stop
type StopState struct {
	Active      bool       `json:"active"`
	Reason      string     `json:"reason,omitempty"`
	TriggeredAt *time.Time `json:"triggered_at,omitempty"`
}

// EmergencyStop is the global kill switch for recoveries. While active no new
// execution may start, and listeners are told each time it is triggered so
// running executions can be cancelled.
type EmergencyStop struct {
	mu        sync.RWMutex
	state     StopState
	listeners []func(reason string)
}

// NewEmergencyStop returns an inactive stop
func NewEmergencyStop() *EmergencyStop {
	return &EmergencyStop{}
}

// OnTrigger registers fn to run, outside the lock, on every Trigger
func (s *EmergencyStop) OnTrigger(fn func(reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Trigger activates the stop. Triggering an active stop replaces the reason
// and notifies listeners again.
func (s *EmergencyStop) Trigger(reason string) {
	now := time.Now().UTC()
	s.mu.Lock()
	s.state = StopState{Active: true, Reason: reason, TriggeredAt: &now}
	listeners := append([]func(string){}, s.listeners...)
	s.mu.Unlock()

	log.Printf("safety: EMERGENCY STOP triggered: %s", orUnspecified(reason))
	for _, fn := range listeners {
		fn(reason)
	}
}

// Reset clears the stop so recoveries may start again
func (s *EmergencyStop) Reset() {
	s.mu.Lock()
	was := s.state
	s.state = StopState{}
	s.mu.Unlock()
	if was.Active {
		log.Printf("safety: emergency stop reset after %s", time.Since(*was.TriggeredAt).Round(time.Second))
	}
}

// Active reports whether the stop is engaged
func (s *EmergencyStop) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Active
}

// State returns a copy of the current state
func (s *EmergencyStop) State() StopState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	if st.TriggeredAt != nil {
		at := *st.TriggeredAt
		st.TriggeredAt = &at
	}
	return st
}

// Check returns ErrEmergencyStop, with the reason, while the stop is active
func (s *EmergencyStop) Check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.state.Active {
		return nil
	}
	if s.state.Reason == "" {
		return domain.ErrEmergencyStop
	}
	return fmt.Errorf("%w: %s", domain.ErrEmergencyStop, s.state.Reason)
}

func orUnspecified(reason string) string {
	if reason == "" {
		return "no reason given"
	}
	return reason
}

// WithTimeout runs fn under a deadline of d (1s when d is not positive).
// On expiry the caller gets ErrTimeout at once while fn, holding a cancelled
// context, winds down in the background.
func WithTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	if d <= 0 {
		d = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w after %v", domain.ErrTimeout, d)
	}
}
