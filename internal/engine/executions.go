package engine

import (
	"sort"
	"sync"

	"github.com/drorchestrator/backend-go/internal/domain"
)

const defaultHistorySize = 100

// executionRegistry owns active runs and a bounded ring of finished
// executions. Finished entries are immutable copies.
type executionRegistry struct {
	mu      sync.RWMutex
	active  map[string]*run
	history []*domain.RecoveryExecution
	next    int
}

func newExecutionRegistry(historySize int) *executionRegistry {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	return &executionRegistry{
		active:  make(map[string]*run),
		history: make([]*domain.RecoveryExecution, 0, historySize),
	}
}

func (r *executionRegistry) add(rn *run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[rn.id] = rn
}

func (r *executionRegistry) run(id string) (*run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rn, ok := r.active[id]
	return rn, ok
}

func (r *executionRegistry) runs() []*run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*run, 0, len(r.active))
	for _, rn := range r.active {
		out = append(out, rn)
	}
	return out
}

// finish moves id out of the active set, evicting the oldest history entry
// once the ring is full
func (r *executionRegistry) finish(id string, final *domain.RecoveryExecution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, id)
	if len(r.history) < cap(r.history) {
		r.history = append(r.history, final)
		return
	}
	r.history[r.next] = final
	r.next = (r.next + 1) % cap(r.history)
}

func (r *executionRegistry) finished(id string) (*domain.RecoveryExecution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.history {
		if e.ID == id {
			return e.Clone(), true
		}
	}
	return nil, false
}

// list returns active and retained executions, newest first
func (r *executionRegistry) list() []*domain.RecoveryExecution {
	r.mu.RLock()
	active := make([]*run, 0, len(r.active))
	for _, rn := range r.active {
		active = append(active, rn)
	}
	out := make([]*domain.RecoveryExecution, 0, len(active)+len(r.history))
	for _, e := range r.history {
		out = append(out, e.Clone())
	}
	r.mu.RUnlock()

	for _, rn := range active {
		out = append(out, rn.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}

func (r *executionRegistry) historyLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.history)
}
