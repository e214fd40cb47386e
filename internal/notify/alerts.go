package notify

import (
	"context"
	"errors"
	"log"

	"github.com/drorchestrator/backend-go/internal/domain"
)

// AlertSink receives RTO/RPO and failure alerts
type AlertSink interface {
	Alert(ctx context.Context, a domain.Alert) error
}

// LogAlertSink writes alerts to the standard logger
type LogAlertSink struct{}

func (LogAlertSink) Alert(ctx context.Context, a domain.Alert) error {
	log.Printf("alert: [%s/%s] execution=%s plan=%s: %s", a.Severity, a.Kind, a.ExecutionID, a.PlanID, a.Message)
	return nil
}

// MultiAlertSink sends each alert to every sink
type MultiAlertSink []AlertSink

func (m MultiAlertSink) Alert(ctx context.Context, a domain.Alert) error {
	var errs []error
	for _, s := range m {
		if err := s.Alert(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
