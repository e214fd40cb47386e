package safety

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/drorchestrator/backend-go/internal/domain"
)

// HealthProbe is the interface that health check probes must implement
type HealthProbe interface {
	Execute(ctx context.Context) (passed bool, err error)
	Name() string
}

// PollConfig bounds how long and how often a restored component is polled
type PollConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	// MaxFailures stops polling early after this many failed checks; 0 means only Timeout applies
	MaxFailures int
}

// PollUntilHealthy checks the probe immediately and then every interval until
// it passes. It gives up with ErrHealthCheckTimeout when the timeout elapses
// or MaxFailures checks have failed. It returns the number of checks made.
func PollUntilHealthy(ctx context.Context, p HealthProbe, cfg PollConfig) (int, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}

	deadline := time.NewTimer(cfg.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	checks, failures := 0, 0
	var lastErr error
	for {
		checks++
		passed, err := p.Execute(checkCtx)
		if err == nil && passed {
			return checks, nil
		}
		failures++
		lastErr = err
		if lastErr == nil {
			lastErr = fmt.Errorf("probe %s reported unhealthy", p.Name())
		}
		log.Printf("Health check %s failed (%d): %v", p.Name(), failures, lastErr)

		if cfg.MaxFailures > 0 && failures >= cfg.MaxFailures {
			return checks, fmt.Errorf("%w: %s failed %d checks: %v", domain.ErrHealthCheckTimeout, p.Name(), failures, lastErr)
		}

		select {
		case <-ctx.Done():
			return checks, ctx.Err()
		case <-deadline.C:
			return checks, fmt.Errorf("%w: %s not healthy after %v: %v", domain.ErrHealthCheckTimeout, p.Name(), cfg.Timeout, lastErr)
		case <-ticker.C:
		}
	}
}
