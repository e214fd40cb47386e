package safety

import (
	"fmt"
	"log"
	"sync"

	"github.com/drorchestrator/backend-go/internal/domain"
)

// Rollback step statuses
const (
	StepSucceeded = "success"
	StepFailed    = "failed"
)

type undo struct {
	component string
	what      string
	fn        domain.RollbackFunc
}

// RollbackManager keeps, per execution, the undo functions of every
// component restored so far. Undo runs newest first.
type RollbackManager struct {
	mu    sync.Mutex
	undos map[string][]undo
}

func NewRollbackManager() *RollbackManager {
	return &RollbackManager{undos: make(map[string][]undo)}
}

// Push records how to undo componentID's restore. A nil fn is ignored:
// the restore left nothing behind to revert.
func (rm *RollbackManager) Push(executionID, componentID string, fn domain.RollbackFunc, description string) {
	if fn == nil {
		return
	}
	rm.mu.Lock()
	rm.undos[executionID] = append(rm.undos[executionID], undo{component: componentID, what: description, fn: fn})
	depth := len(rm.undos[executionID])
	rm.mu.Unlock()
	log.Printf("rollback: %s registered undo for %s (%s), depth %d", executionID, componentID, description, depth)
}

// Rollback runs and forgets the execution's undo functions. A failing or
// panicking step is recorded and the remaining steps still run; nothing is
// retried.
func (rm *RollbackManager) Rollback(executionID string) []domain.RollbackStep {
	rm.mu.Lock()
	pending := rm.undos[executionID]
	delete(rm.undos, executionID)
	rm.mu.Unlock()

	steps := make([]domain.RollbackStep, 0, len(pending))
	for i := len(pending) - 1; i >= 0; i-- {
		u := pending[i]
		step := domain.RollbackStep{ComponentID: u.component, Description: u.what, Status: StepSucceeded}
		result, err := u.run()
		if err != nil {
			step.Status = StepFailed
			step.Error = err.Error()
			log.Printf("rollback: %s undo of %s failed: %v", executionID, u.component, err)
		} else {
			step.Result = result
		}
		steps = append(steps, step)
	}
	return steps
}

func (u undo) run() (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rollback panicked: %v", r)
		}
	}()
	return u.fn()
}

// Discard forgets the execution's undo functions without running them
func (rm *RollbackManager) Discard(executionID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.undos, executionID)
}

// Pending lists the components Rollback would undo, in the order it would
// undo them
func (rm *RollbackManager) Pending(executionID string) []string {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	stack := rm.undos[executionID]
	ids := make([]string, 0, len(stack))
	for i := len(stack) - 1; i >= 0; i-- {
		ids = append(ids, stack[i].component)
	}
	return ids
}
