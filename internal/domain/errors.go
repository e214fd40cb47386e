package domain

import "errors"

var (
	// ErrPlanNotFound is returned when a plan ID is not registered
	ErrPlanNotFound = errors.New("plan not found")

	// ErrCyclicDependency is returned when hard dependencies form a cycle
	ErrCyclicDependency = errors.New("cyclic dependency")

	// ErrInsufficientResources is returned when a request can never fit the resource pool
	ErrInsufficientResources = errors.New("insufficient resources")

	// ErrComponentRestore is returned when a restore reports failure
	ErrComponentRestore = errors.New("component restore failed")

	// ErrHealthCheckTimeout is returned when a health check does not pass in time
	ErrHealthCheckTimeout = errors.New("health check timed out")

	// ErrPostActionFailed is returned when a critical post-recovery action fails
	ErrPostActionFailed = errors.New("post-recovery action failed")

	// ErrVerificationFailed is returned when verification of a critical component fails
	ErrVerificationFailed = errors.New("verification failed")

	// ErrRollbackFailed is returned when a rollback step fails
	ErrRollbackFailed = errors.New("rollback failed")

	// ErrInvalidPlan is returned when a plan fails structural validation
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrUnknownComponent is returned when a dependency references a missing component
	ErrUnknownComponent = errors.New("unknown component")

	// ErrUnsupportedComponentType is returned when no restorer handles a component type
	ErrUnsupportedComponentType = errors.New("unsupported component type")

	// ErrPlanInUse is returned when a plan with an active execution is replaced or removed
	ErrPlanInUse = errors.New("plan has an active execution")

	// ErrExecutionNotFound is returned when an execution ID is unknown
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionFinished is returned when controlling an execution that already ended
	ErrExecutionFinished = errors.New("execution already finished")

	// ErrDuplicateReservation is returned when an ID already holds or awaits resources
	ErrDuplicateReservation = errors.New("resources already reserved")

	// ErrReservationNotFound is returned when releasing an ID that holds nothing
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrEmergencyStop is returned when the emergency stop is active
	ErrEmergencyStop = errors.New("emergency stop is active")

	// ErrCancelled is returned when an execution was cancelled by request
	ErrCancelled = errors.New("execution cancelled")

	// ErrTimeout is returned when an operation exceeds its timeout
	ErrTimeout = errors.New("operation timed out")
)
