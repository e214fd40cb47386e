package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/drorchestrator/backend-go/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFiltersByExecution(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	mine, unsubMine := bus.Subscribe("recovery_1")
	defer unsubMine()
	all, unsubAll := bus.Subscribe("")
	defer unsubAll()

	bus.Publish(domain.Event{Type: domain.EventRecoveryStarted, ExecutionID: "recovery_1"})
	bus.Publish(domain.Event{Type: domain.EventRecoveryStarted, ExecutionID: "recovery_2"})

	ev := <-mine
	assert.Equal(t, "recovery_1", ev.ExecutionID)
	assert.False(t, ev.Timestamp.IsZero())
	select {
	case extra := <-mine:
		t.Fatalf("unexpected event %+v", extra)
	default:
	}

	assert.Equal(t, "recovery_1", (<-all).ExecutionID)
	assert.Equal(t, "recovery_2", (<-all).ExecutionID)
}

func TestBusSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()
	ch, unsub := bus.Subscribe("")
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(domain.Event{Type: domain.EventPhaseChanged})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, ch, 1)
}

func TestBusTerminalEventSurvivesFullBuffer(t *testing.T) {
	bus := NewBus(2)
	defer bus.Close()
	ch, unsub := bus.Subscribe("r1")
	defer unsub()

	for i := 0; i < 5; i++ {
		bus.Publish(domain.Event{Type: domain.EventComponentStatusChanged, ExecutionID: "r1"})
	}
	bus.Publish(domain.Event{Type: domain.EventRecoveryCancelled, ExecutionID: "r1"})

	require.Len(t, ch, 2)
	assert.Equal(t, domain.EventComponentStatusChanged, (<-ch).Type)
	assert.Equal(t, domain.EventRecoveryCancelled, (<-ch).Type)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(4)
	ch, unsub := bus.Subscribe("")
	assert.Equal(t, 1, bus.Subscribers())

	unsub()
	unsub()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, bus.Subscribers())

	bus.Close()
	bus.Publish(domain.Event{Type: domain.EventPhaseChanged})
}

type recordingForwarder struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (f *recordingForwarder) PublishEvent(ctx context.Context, ev domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func TestBusForwarders(t *testing.T) {
	bus := NewBus(4)
	ok := &recordingForwarder{}
	failing := &recordingForwarder{err: errors.New("down")}
	bus.Forward(ok)
	bus.Forward(failing)

	bus.Publish(domain.Event{Type: domain.EventRecoveryStarted, ExecutionID: "r1"})
	bus.Publish(domain.Event{Type: domain.EventRecoveryCompleted, ExecutionID: "r1"})
	bus.Close()

	assert.Len(t, ok.events, 2)
	assert.Len(t, failing.events, 2)
	assert.Equal(t, domain.EventRecoveryCompleted, ok.events[1].Type)
}

type recordingSink struct {
	alerts []domain.Alert
	err    error
}

func (s *recordingSink) Alert(ctx context.Context, a domain.Alert) error {
	s.alerts = append(s.alerts, a)
	return s.err
}

func TestMultiAlertSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{err: errors.New("unreachable")}
	sink := MultiAlertSink{LogAlertSink{}, a, b}

	err := sink.Alert(context.Background(), domain.Alert{Kind: domain.AlertRTOViolation, ExecutionID: "r1"})
	assert.ErrorContains(t, err, "unreachable")
	assert.Len(t, a.alerts, 1)
	assert.Len(t, b.alerts, 1)

	assert.NoError(t, MultiAlertSink{}.Alert(context.Background(), domain.Alert{}))
}

func TestRedisPublisherUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	p := NewRedisPublisher(client)

	err := p.PublishEvent(context.Background(), domain.Event{Type: domain.EventRecoveryStarted})
	assert.ErrorContains(t, err, "publish to recovery:events")

	err = p.Alert(context.Background(), domain.Alert{Kind: domain.AlertRecoveryFailed})
	assert.ErrorContains(t, err, "publish to recovery:alerts")
}

func TestNewRedisClientBadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not-a-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis URL")
}
