package safety

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/drorchestrator/backend-go/internal/domain"
)

const maxSnapshots = 1000

// Snapshot is the pre-recovery state of one component's target
type Snapshot struct {
	ExecutionID    string               `json:"execution_id"`
	ComponentID    string               `json:"component_id"`
	ComponentType  domain.ComponentType `json:"component_type"`
	TargetLocation string               `json:"target_location"`
	BackupLocation string               `json:"backup_location"`
	State          map[string]any       `json:"state,omitempty"`
	CapturedAt     time.Time            `json:"captured_at"`
}

// SnapshotSink persists snapshots outside the process
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
}

// SnapshotManager keeps pre-recovery snapshots keyed by execution and component
type SnapshotManager struct {
	mu        sync.RWMutex
	snapshots map[string]map[string]*Snapshot
	count     int
	sink      SnapshotSink
}

// NewSnapshotManager creates a new SnapshotManager; sink may be nil
func NewSnapshotManager(sink SnapshotSink) *SnapshotManager {
	return &SnapshotManager{
		snapshots: make(map[string]map[string]*Snapshot),
		sink:      sink,
	}
}

// Capture records the state of comp's target before it is overwritten
func (sm *SnapshotManager) Capture(
	ctx context.Context,
	executionID string,
	comp domain.RecoveryComponent,
	state map[string]any,
) *Snapshot {
	snap := &Snapshot{
		ExecutionID:    executionID,
		ComponentID:    comp.ID,
		ComponentType:  comp.Type,
		TargetLocation: comp.TargetLocation,
		BackupLocation: comp.BackupLocation,
		State:          state,
		CapturedAt:     time.Now().UTC(),
	}

	sm.mu.Lock()
	byComponent, ok := sm.snapshots[executionID]
	if !ok {
		sm.evictIfNeeded()
		byComponent = make(map[string]*Snapshot)
		sm.snapshots[executionID] = byComponent
	}
	if _, exists := byComponent[comp.ID]; !exists {
		sm.count++
	}
	byComponent[comp.ID] = snap
	sm.mu.Unlock()

	if sm.sink != nil {
		if err := sm.sink.SaveSnapshot(ctx, snap); err != nil {
			log.Printf("DB persistence skipped for snapshot %s/%s: %v", executionID, comp.ID, err)
		}
	}
	return snap
}

// evictIfNeeded drops the execution holding the oldest snapshot when at
// capacity. Must be called with sm.mu held.
func (sm *SnapshotManager) evictIfNeeded() {
	if sm.count < maxSnapshots {
		return
	}
	var oldestID string
	var oldest time.Time
	for execID, byComponent := range sm.snapshots {
		for _, s := range byComponent {
			if oldestID == "" || s.CapturedAt.Before(oldest) {
				oldestID, oldest = execID, s.CapturedAt
			}
		}
	}
	sm.count -= len(sm.snapshots[oldestID])
	delete(sm.snapshots, oldestID)
}

// Get returns the snapshot for one component of an execution
func (sm *SnapshotManager) Get(executionID, componentID string) (*Snapshot, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	snap, ok := sm.snapshots[executionID][componentID]
	return snap, ok
}

// ForExecution returns all snapshots captured for an execution
func (sm *SnapshotManager) ForExecution(executionID string) []*Snapshot {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	out := make([]*Snapshot, 0, len(sm.snapshots[executionID]))
	for _, s := range sm.snapshots[executionID] {
		out = append(out, s)
	}
	return out
}

// Delete removes all snapshots of an execution
func (sm *SnapshotManager) Delete(executionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.count -= len(sm.snapshots[executionID])
	delete(sm.snapshots, executionID)
}

// Len returns the number of stored snapshots
func (sm *SnapshotManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.count
}
