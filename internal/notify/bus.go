package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/drorchestrator/backend-go/internal/domain"
)

const (
	defaultSubscriberBuffer = 64
	forwardBuffer           = 1024
	forwardTimeout          = 5 * time.Second
)

// EventForwarder receives every event published on a Bus, off the caller's
// goroutine
type EventForwarder interface {
	PublishEvent(ctx context.Context, ev domain.Event) error
}

type subscription struct {
	executionID string
	ch          chan domain.Event
}

// Bus fans execution events out to in-process subscribers and forwarders.
// Publish never blocks: a subscriber that falls behind loses events, except
// that a terminal event evicts the oldest buffered ones to make room.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	buffer int

	fwd    []chan domain.Event
	wg     sync.WaitGroup
	closed bool
}

// NewBus creates a Bus whose subscriber channels hold buffer events
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Bus{subs: make(map[uint64]*subscription), buffer: buffer}
}

// Subscribe returns a channel of events for executionID ("" for all) and a
// function that unsubscribes and closes the channel
func (b *Bus) Subscribe(executionID string) (<-chan domain.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	sub := &subscription{executionID: executionID, ch: make(chan domain.Event, b.buffer)}
	b.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
		})
	}
}

// Forward registers f to receive all subsequent events
func (b *Bus) Forward(f EventForwarder) {
	ch := make(chan domain.Event, forwardBuffer)
	b.mu.Lock()
	b.fwd = append(b.fwd, ch)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for ev := range ch {
			ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
			if err := f.PublishEvent(ctx, ev); err != nil {
				log.Printf("notify: forward %s for %s failed: %v", ev.Type, ev.ExecutionID, err)
			}
			cancel()
		}
	}()
}

// Publish delivers ev to matching subscribers and forwarders
func (b *Bus) Publish(ev domain.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if sub.executionID != "" && sub.executionID != ev.ExecutionID {
			continue
		}
		sub.deliver(ev)
	}
	for _, ch := range b.fwd {
		select {
		case ch <- ev:
		default:
			log.Printf("notify: forward queue full, dropping %s", ev.Type)
		}
	}
}

func (s *subscription) deliver(ev domain.Event) {
	select {
	case s.ch <- ev:
		return
	default:
	}
	if !ev.Terminal() {
		return
	}
	for {
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- ev:
			return
		default:
		}
	}
}

// Subscribers is the number of open subscriptions
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes all subscriptions and drains forwarders
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
	for _, ch := range b.fwd {
		close(ch)
	}
	b.mu.Unlock()
	b.wg.Wait()
}
