package restore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/drorchestrator/backend-go/internal/domain"
)

// Outcome is what a restore reports back to the executor
type Outcome struct {
	Success          bool
	BytesTransferred int64
	// DataLossWindow is how far behind "now" the restored data is, when known
	DataLossWindow *time.Duration
	Detail         map[string]any
	// Rollback undoes the restore; nil when there is nothing to undo
	Rollback            domain.RollbackFunc
	RollbackDescription string
}

// Restorable restores one kind of component
type Restorable interface {
	Restore(ctx context.Context, comp domain.RecoveryComponent) (*Outcome, error)
	EstimateResources(comp domain.RecoveryComponent) domain.ResourceRequirements
}

// Prestager is implemented by restorers that can read a target's current
// state before it is overwritten
type Prestager interface {
	Prestage(ctx context.Context, comp domain.RecoveryComponent) (map[string]any, error)
}

// Registry maps component types to restorers
type Registry struct {
	mu     sync.RWMutex
	byType map[domain.ComponentType]Restorable
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{byType: make(map[domain.ComponentType]Restorable)}
}

// Register installs r for t, replacing any previous restorer
func (r *Registry) Register(t domain.ComponentType, restorer Restorable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[t] = restorer
}

// Lookup returns the restorer for t
func (r *Registry) Lookup(t domain.ComponentType) (Restorable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	restorer, ok := r.byType[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedComponentType, t)
	}
	return restorer, nil
}

// Types lists registered component types
func (r *Registry) Types() []domain.ComponentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ComponentType, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Estimate returns the component's declared resources, or the registered
// restorer's estimate when none were declared
func (r *Registry) Estimate(comp domain.RecoveryComponent) domain.ResourceRequirements {
	if !comp.Resources.IsZero() {
		return comp.Resources
	}
	restorer, err := r.Lookup(comp.Type)
	if err != nil {
		return DefaultEstimate(comp)
	}
	return restorer.EstimateResources(comp)
}

func window(d time.Duration) *time.Duration {
	if d < 0 {
		d = 0
	}
	return &d
}
