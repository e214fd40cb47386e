package arbiter

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/drorchestrator/backend-go/internal/domain"
)

// Arbiter hands out slices of a fixed multi-dimensional resource pool.
//
// Waiters queue with critical requests ahead of the rest and arrival order
// within each class. Only the head of the queue may be granted, so a large
// request is never starved by a stream of small ones.
type Arbiter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity domain.ResourceRequirements
	inUse    domain.ResourceRequirements
	held     map[string]domain.ResourceRequirements
	queue    []*request
	seq      uint64
}

type request struct {
	id       string
	amount   domain.ResourceRequirements
	critical bool
	seq      uint64
}

// New creates an Arbiter over the given pool
func New(capacity domain.ResourceRequirements) *Arbiter {
	a := &Arbiter{
		capacity: capacity,
		held:     make(map[string]domain.ResourceRequirements),
	}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// CanEverFit reports whether the request fits an empty pool
func (a *Arbiter) CanEverFit(req domain.ResourceRequirements) bool {
	return req.FitsWithin(a.capacity)
}

// Reserve blocks until req can be granted to id or ctx is done. An id may
// hold at most one reservation at a time.
func (a *Arbiter) Reserve(ctx context.Context, id string, req domain.ResourceRequirements, critical bool) error {
	if req.Negative() {
		return fmt.Errorf("arbiter: negative request for %q: %s", id, req)
	}
	if !a.CanEverFit(req) {
		return fmt.Errorf("%w: %q requests %s, pool is %s", domain.ErrInsufficientResources, id, req, a.capacity)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.held[id]; ok || a.queued(id) {
		return fmt.Errorf("%w: %q", domain.ErrDuplicateReservation, id)
	}

	a.seq++
	r := &request{id: id, amount: req, critical: critical, seq: a.seq}
	a.enqueue(r)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			a.mu.Lock()
			a.cond.Broadcast()
			a.mu.Unlock()
		case <-done:
		}
	}()

	for {
		if a.queue[0] == r && req.FitsWithin(a.capacity.Sub(a.inUse)) {
			a.queue = a.queue[1:]
			a.held[id] = req
			a.inUse = a.inUse.Add(req)
			// the new head may fit too
			a.cond.Broadcast()
			return nil
		}
		if err := ctx.Err(); err != nil {
			a.dequeue(r)
			a.cond.Broadcast()
			return err
		}
		a.cond.Wait()
	}
}

// Release returns everything held by id to the pool
func (a *Arbiter) Release(id string) (domain.ResourceRequirements, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	amount, ok := a.held[id]
	if !ok {
		return domain.ResourceRequirements{}, fmt.Errorf("%w: %q", domain.ErrReservationNotFound, id)
	}
	delete(a.held, id)
	a.inUse = a.inUse.Sub(amount)
	if a.inUse.Negative() {
		// in-use never drops below zero
		log.Printf("arbiter: pool accounting went negative after releasing %q: %s", id, a.inUse)
		a.inUse = domain.ResourceRequirements{}
	}
	a.cond.Broadcast()
	return amount, nil
}

// Held reports whether id currently holds a reservation
func (a *Arbiter) Held(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.held[id]
	return ok
}

// Capacity returns the total pool
func (a *Arbiter) Capacity() domain.ResourceRequirements {
	return a.capacity
}

// Available returns the unreserved part of the pool
func (a *Arbiter) Available() domain.ResourceRequirements {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capacity.Sub(a.inUse)
}

// Waiting returns the number of queued requests
func (a *Arbiter) Waiting() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// Utilization returns the percentage in use per dimension
func (a *Arbiter) Utilization() map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]float64{
		"cpu":     percent(a.inUse.CPUMillis, a.capacity.CPUMillis),
		"memory":  percent(a.inUse.MemoryMB, a.capacity.MemoryMB),
		"disk":    percent(a.inUse.DiskMB, a.capacity.DiskMB),
		"network": percent(a.inUse.NetworkMbps, a.capacity.NetworkMbps),
	}
}

func percent(used, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(used) / float64(total) * 100
}

func (a *Arbiter) queued(id string) bool {
	for _, r := range a.queue {
		if r.id == id {
			return true
		}
	}
	return false
}

func (a *Arbiter) enqueue(r *request) {
	pos := len(a.queue)
	if r.critical {
		for i, q := range a.queue {
			if !q.critical {
				pos = i
				break
			}
		}
	}
	a.queue = append(a.queue, nil)
	copy(a.queue[pos+1:], a.queue[pos:])
	a.queue[pos] = r
}

func (a *Arbiter) dequeue(r *request) {
	for i, q := range a.queue {
		if q == r {
			a.queue = append(a.queue[:i], a.queue[i+1:]...)
			return
		}
	}
}
