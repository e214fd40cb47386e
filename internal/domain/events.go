package domain

import "time"

// EventType names a status event published by the orchestrator
type EventType string

const (
	EventRecoveryStarted        EventType = "recovery_started"
	EventRecoveryCompleted      EventType = "recovery_completed"
	EventRecoveryFailed         EventType = "recovery_failed"
	EventRecoveryCancelled      EventType = "recovery_cancelled"
	EventRecoveryPaused         EventType = "recovery_paused"
	EventRecoveryResumed        EventType = "recovery_resumed"
	EventPhaseChanged           EventType = "phase_changed"
	EventComponentStatusChanged EventType = "component_status_changed"
	EventRTOExceeded            EventType = "rto_exceeded"
)

// Event is a point-in-time notification about an execution
type Event struct {
	Type        EventType `json:"type"`
	ExecutionID string    `json:"execution_id"`
	PlanID      string    `json:"plan_id"`
	ComponentID string    `json:"component_id,omitempty"`
	Status      string    `json:"status,omitempty"`
	Phase       Phase     `json:"phase,omitempty"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Terminal reports whether the event ends the execution's stream
func (e Event) Terminal() bool {
	switch e.Type {
	case EventRecoveryCompleted, EventRecoveryFailed, EventRecoveryCancelled:
		return true
	}
	return false
}

// AlertKind classifies an alert raised by the orchestrator
type AlertKind string

const (
	AlertRTOViolation   AlertKind = "rto_violation"
	AlertRPOViolation   AlertKind = "rpo_violation"
	AlertRecoveryFailed AlertKind = "recovery_failed"
	AlertRollbackFailed AlertKind = "rollback_failed"
)

// Alert is handed to an alert sink; routing is the sink's concern
type Alert struct {
	Kind        AlertKind `json:"kind"`
	ExecutionID string    `json:"execution_id"`
	PlanID      string    `json:"plan_id"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}
