package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/drorchestrator/backend-go/internal/domain"
	"github.com/drorchestrator/backend-go/internal/engine"
	"github.com/drorchestrator/backend-go/internal/notify"
)

const (
	defaultStreamTimeout = 30 * time.Minute
	// streams re-read execution state this often in case events were missed
	defaultStreamPoll = 2 * time.Second
)

// ExecutionReader reads persisted executions
type ExecutionReader interface {
	GetExecution(ctx context.Context, id string) (*domain.RecoveryExecution, error)
	ListExecutions(ctx context.Context, planID string, limit int) ([]*domain.RecoveryExecution, error)
}

// RecoveryHandler handles recovery execution endpoints
type RecoveryHandler struct {
	orch          *engine.Orchestrator
	bus           *notify.Bus
	store         ExecutionReader
	streamTimeout time.Duration
	streamPoll    time.Duration
}

// NewRecoveryHandler creates a new RecoveryHandler; bus and store may be nil
func NewRecoveryHandler(orch *engine.Orchestrator, bus *notify.Bus, store ExecutionReader) *RecoveryHandler {
	return &RecoveryHandler{
		orch:          orch,
		bus:           bus,
		store:         store,
		streamTimeout: defaultStreamTimeout,
		streamPoll:    defaultStreamPoll,
	}
}

type startRecoveryRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
	engine.SubmitOptions
}

// StartRecovery submits a plan for execution and returns immediately
func (h *RecoveryHandler) StartRecovery(c *gin.Context) {
	var req startRecoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = "api"
	}

	// executions outlive the request
	id, err := h.orch.Submit(context.WithoutCancel(c.Request.Context()), req.PlanID, req.SubmitOptions)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"execution_id": id,
		"plan_id":      req.PlanID,
		"status":       domain.ExecutionPlanned,
	})
}

// ListRecoveries returns in-memory executions, or persisted ones with
// ?source=store
func (h *RecoveryHandler) ListRecoveries(c *gin.Context) {
	planID := c.Query("plan_id")

	if c.Query("source") == "store" {
		if h.store == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Database not available"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		execs, err := h.store.ListExecutions(c.Request.Context(), planID, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, execs)
		return
	}

	all := h.orch.List()
	out := make([]*domain.RecoveryExecution, 0, len(all))
	for _, e := range all {
		if planID == "" || e.PlanID == planID {
			out = append(out, e)
		}
	}
	c.JSON(http.StatusOK, out)
}

// GetRecovery returns one execution, falling back to the store once it has
// left the in-memory history
func (h *RecoveryHandler) GetRecovery(c *gin.Context) {
	exec, err := h.lookup(c.Request.Context(), c.Param("execution_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, exec)
}

func (h *RecoveryHandler) lookup(ctx context.Context, id string) (*domain.RecoveryExecution, error) {
	exec, err := h.orch.Get(id)
	if err == nil || h.store == nil || !errors.Is(err, domain.ErrExecutionNotFound) {
		return exec, err
	}
	return h.store.GetExecution(ctx, id)
}

// CancelRecovery stops an execution before its next group
func (h *RecoveryHandler) CancelRecovery(c *gin.Context) {
	h.control(c, h.orch.Cancel, "cancel_requested")
}

// PauseRecovery holds an execution before its next group
func (h *RecoveryHandler) PauseRecovery(c *gin.Context) {
	h.control(c, h.orch.Pause, string(domain.ExecutionPaused))
}

// ResumeRecovery releases a paused execution
func (h *RecoveryHandler) ResumeRecovery(c *gin.Context) {
	h.control(c, h.orch.Resume, string(domain.ExecutionRunning))
}

func (h *RecoveryHandler) control(c *gin.Context, fn func(id string) error, status string) {
	id := c.Param("execution_id")
	if err := fn(id); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"execution_id": id, "status": status})
}

// sendSSE writes a single SSE event to the response writer
func sendSSE(c *gin.Context, event string, data any) {
	j, err := json.Marshal(data)
	if err != nil {
		log.Printf("SSE marshal error: %v", err)
		return
	}
	_, _ = fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, j)
	if f, ok := c.Writer.(http.Flusher); ok {
		f.Flush()
	}
}

// StreamRecovery streams execution events via Server-Sent Events. The
// current state is sent first; the stream ends with a "done" event once the
// execution is terminal.
func (h *RecoveryHandler) StreamRecovery(c *gin.Context) {
	if h.bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Event stream not available"})
		return
	}
	id := c.Param("execution_id")

	// subscribe before reading state so no transition falls in between
	events, unsubscribe := h.bus.Subscribe(id)
	defer unsubscribe()

	exec, err := h.lookup(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendSSE(c, "execution", exec)
	if exec.Status.Terminal() {
		sendSSE(c, "done", gin.H{"status": exec.Status})
		return
	}

	maxTimeout := time.After(h.streamTimeout)
	poll := time.NewTicker(h.streamPoll)
	defer poll.Stop()
	for {
		select {
		case <-maxTimeout:
			sendSSE(c, "timeout", gin.H{"message": "stream max timeout reached"})
			return
		case <-c.Request.Context().Done():
			return
		case <-poll.C:
			cur, err := h.orch.Get(id)
			if err == nil && cur.Status.Terminal() {
				sendSSE(c, "execution", cur)
				sendSSE(c, "done", gin.H{"status": cur.Status})
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			sendSSE(c, string(ev.Type), ev)
			if ev.Terminal() {
				if final, err := h.orch.Get(id); err == nil {
					sendSSE(c, "execution", final)
				}
				sendSSE(c, "done", gin.H{"status": ev.Status})
				return
			}
		}
	}
}
