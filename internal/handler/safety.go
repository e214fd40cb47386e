package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/drorchestrator/backend-go/internal/engine"
	"github.com/drorchestrator/backend-go/internal/safety"
)

// SafetyHandler serves liveness and the emergency stop switch
type SafetyHandler struct {
	esm  *safety.EmergencyStop
	orch *engine.Orchestrator
}

func NewSafetyHandler(esm *safety.EmergencyStop, orch *engine.Orchestrator) *SafetyHandler {
	return &SafetyHandler{esm: esm, orch: orch}
}

// Health always answers 200; an active emergency stop is reported, not failed
func (h *SafetyHandler) Health(c *gin.Context) {
	status := "healthy"
	if h.esm.Active() {
		status = "emergency_stopped"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"emergency_stop":    h.esm.Active(),
		"active_recoveries": h.orch.Active(),
	})
}

// GetEmergencyStop handles GET /emergency-stop
func (h *SafetyHandler) GetEmergencyStop(c *gin.Context) {
	c.JSON(http.StatusOK, h.esm.State())
}

// TriggerEmergencyStop handles POST /emergency-stop. The body is optional.
func (h *SafetyHandler) TriggerEmergencyStop(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
	}
	h.esm.Trigger(req.Reason)
	c.JSON(http.StatusOK, gin.H{"status": "emergency_stop_triggered", "state": h.esm.State()})
}

// ResetEmergencyStop handles POST /emergency-stop/reset
func (h *SafetyHandler) ResetEmergencyStop(c *gin.Context) {
	h.esm.Reset()
	c.JSON(http.StatusOK, gin.H{"status": "emergency_stop_reset"})
}
