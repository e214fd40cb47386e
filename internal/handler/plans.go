package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/drorchestrator/backend-go/internal/graph"
	"github.com/drorchestrator/backend-go/internal/plan"
)

const maxPlanBytes = 4 << 20

// PlanHandler handles recovery plan endpoints
type PlanHandler struct {
	plans *plan.Registry
}

// NewPlanHandler creates a new PlanHandler
func NewPlanHandler(plans *plan.Registry) *PlanHandler {
	return &PlanHandler{plans: plans}
}

// RegisterPlan validates and stores a plan. YAML bodies are accepted when
// the content type says so.
func (h *PlanHandler) RegisterPlan(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPlanBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	name := "plan.json"
	if strings.Contains(c.ContentType(), "yaml") {
		name = "plan.yaml"
	}
	p, err := plan.Parse(name, raw)
	if err != nil {
		abortWithError(c, err)
		return
	}

	stored, err := h.plans.Register(p)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

// ListPlans returns all registered plans
func (h *PlanHandler) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, h.plans.List())
}

// GetPlan returns one plan
func (h *PlanHandler) GetPlan(c *gin.Context) {
	p, err := h.plans.Get(c.Param("plan_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DeletePlan removes a plan that has no active execution
func (h *PlanHandler) DeletePlan(c *gin.Context) {
	id := c.Param("plan_id")
	if err := h.plans.Remove(id); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan_id": id, "status": "deleted"})
}

// GetSchedule returns the execution groups the plan would run in
func (h *PlanHandler) GetSchedule(c *gin.Context) {
	p, err := h.plans.Get(c.Param("plan_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	sched, err := plan.Validate(p)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"plan_id":                    p.ID,
		"groups":                     sched.Groups,
		"warnings":                   sched.Warnings,
		"estimated_duration_seconds": int(sched.EstimatedDuration.Seconds()),
	})
}

// GetGraph renders the dependency graph as JSON or Graphviz DOT
func (h *PlanHandler) GetGraph(c *gin.Context) {
	p, err := h.plans.Get(c.Param("plan_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	g, err := graph.Build(p)
	if err != nil {
		abortWithError(c, err)
		return
	}
	sched, err := graph.PlanSchedule(g)
	if err != nil {
		abortWithError(c, err)
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "dot":
		c.Data(http.StatusOK, "text/vnd.graphviz; charset=utf-8", []byte(graph.DOT(g, sched).String()))
	case "json":
		c.JSON(http.StatusOK, g.View(sched))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"detail": "format must be dot or json"})
	}
}
