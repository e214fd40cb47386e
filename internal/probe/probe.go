package probe

import (
	"context"
	"log"
	"time"

	"github.com/drorchestrator/backend-go/internal/domain"
)

// Result is the outcome of one check against a recovered component
type Result struct {
	Check     string           `json:"check"`
	Kind      domain.ProbeType `json:"kind"`
	Target    string           `json:"target,omitempty"`
	Healthy   bool             `json:"healthy"`
	Detail    map[string]any   `json:"detail,omitempty"`
	Error     string           `json:"error,omitempty"`
	Latency   time.Duration    `json:"latency"`
	CheckedAt time.Time        `json:"checked_at"`
}

// Failure explains an unhealthy result; "" when healthy
func (r *Result) Failure() string {
	switch {
	case r.Healthy:
		return ""
	case r.Error != "":
		return r.Error
	default:
		return r.Check + " did not pass"
	}
}

// Probe checks one aspect of a component's health. Check returns an error
// only when it could not reach a verdict.
type Probe interface {
	Check(ctx context.Context) (*Result, error)
	Name() string
	Kind() domain.ProbeType
}

// Run checks p and folds an error into an unhealthy result
func Run(ctx context.Context, p Probe) *Result {
	start := time.Now()
	res, err := p.Check(ctx)
	if err != nil {
		log.Printf("probe: %s failed: %v", p.Name(), err)
		res = &Result{Check: p.Name(), Kind: p.Kind(), Error: err.Error()}
	}
	if res.Latency == 0 {
		res.Latency = time.Since(start)
	}
	if res.CheckedAt.IsZero() {
		res.CheckedAt = time.Now().UTC()
	}
	return res
}

func newResult(name string, kind domain.ProbeType, target string, healthy bool, detail map[string]any) *Result {
	return &Result{
		Check:     name,
		Kind:      kind,
		Target:    target,
		Healthy:   healthy,
		Detail:    detail,
		CheckedAt: time.Now().UTC(),
	}
}
