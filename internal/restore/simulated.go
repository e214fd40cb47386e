package restore

import (
	"context"
	"time"

	"github.com/drorchestrator/backend-go/internal/domain"
	"github.com/drorchestrator/backend-go/internal/probe"
)

// Simulated stands in for a real backend when none is configured. It
// "restores" by waiting a scaled fraction of the component's estimated
// recovery time.
type Simulated struct {
	// TimeScale multiplies the estimated recovery time; 0 returns immediately
	TimeScale float64
}

func (s *Simulated) Restore(ctx context.Context, comp domain.RecoveryComponent) (*Outcome, error) {
	wait := time.Duration(float64(comp.EstimatedRecoveryTime()) * s.TimeScale)
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	out := &Outcome{
		Success:          true,
		BytesTransferred: comp.SizeBytes,
		Detail: map[string]any{
			"simulated": true,
			"source":    comp.BackupLocation,
			"target":    comp.TargetLocation,
		},
	}
	if loss := probe.FloatProp(comp.Parameters, "simulated_data_loss_seconds", -1); loss >= 0 {
		out.DataLossWindow = window(time.Duration(loss * float64(time.Second)))
	}
	return out, nil
}

func (s *Simulated) EstimateResources(comp domain.RecoveryComponent) domain.ResourceRequirements {
	return DefaultEstimate(comp)
}
