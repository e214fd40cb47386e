package safety

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drorchestrator/backend-go/internal/domain"
)

func TestEmergencyStopLifecycle(t *testing.T) {
	s := NewEmergencyStop()
	assert.False(t, s.Active())
	assert.NoError(t, s.Check())
	assert.Nil(t, s.State().TriggeredAt)

	s.Trigger("replica lag above 10m")
	assert.True(t, s.Active())
	err := s.Check()
	assert.ErrorIs(t, err, domain.ErrEmergencyStop)
	assert.Contains(t, err.Error(), "replica lag above 10m")

	st := s.State()
	assert.Equal(t, "replica lag above 10m", st.Reason)
	require.NotNil(t, st.TriggeredAt)

	s.Reset()
	assert.False(t, s.Active())
	assert.NoError(t, s.Check())
	assert.Equal(t, StopState{}, s.State())
}

func TestEmergencyStopWithoutReason(t *testing.T) {
	s := NewEmergencyStop()
	s.Trigger("")
	assert.Equal(t, domain.ErrEmergencyStop, s.Check())
}

func TestEmergencyStopNotifiesListeners(t *testing.T) {
	s := NewEmergencyStop()
	var got []string
	s.OnTrigger(func(reason string) { got = append(got, "a:"+reason) })
	s.OnTrigger(func(reason string) { got = append(got, "b:"+reason) })

	s.Trigger("first")
	s.Trigger("second")
	s.Reset()

	assert.Equal(t, []string{"a:first", "b:first", "a:second", "b:second"}, got)
}

func TestEmergencyStopStateIsCopy(t *testing.T) {
	s := NewEmergencyStop()
	s.Trigger("x")
	st := s.State()
	*st.TriggeredAt = time.Time{}
	assert.False(t, s.State().TriggeredAt.IsZero())
}

func TestEmergencyStopConcurrentUse(t *testing.T) {
	s := NewEmergencyStop()
	s.OnTrigger(func(string) {})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Trigger("load test")
			_ = s.Check()
			_ = s.State()
			s.Reset()
		}()
	}
	wg.Wait()
}

func TestWithTimeout(t *testing.T) {
	boom := errors.New("restore api unavailable")

	tests := []struct {
		name    string
		d       time.Duration
		fn      func(ctx context.Context) error
		wantErr error
	}{
		{
			name: "finishes in time",
			d:    time.Second,
			fn:   func(ctx context.Context) error { return nil },
		},
		{
			name:    "returns fn error",
			d:       time.Second,
			fn:      func(ctx context.Context) error { return boom },
			wantErr: boom,
		},
		{
			name: "expires",
			d:    20 * time.Millisecond,
			fn: func(ctx context.Context) error {
				<-ctx.Done()
				time.Sleep(50 * time.Millisecond)
				return nil
			},
			wantErr: domain.ErrTimeout,
		},
		{
			name: "non-positive gets a deadline",
			d:    0,
			fn: func(ctx context.Context) error {
				if _, ok := ctx.Deadline(); !ok {
					return errors.New("no deadline")
				}
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WithTimeout(context.Background(), tt.d, tt.fn)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
