package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drorchestrator/backend-go/internal/observability"
	"github.com/drorchestrator/backend-go/internal/safety"
)

// SetupRouter wires the plan, recovery and safety endpoints
func SetupRouter(
	plans *PlanHandler,
	recoveries *RecoveryHandler,
	esm *safety.EmergencyStop,
	metrics *observability.Metrics,
	corsOrigin string,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), CORSMiddleware(corsOrigin), PrometheusMiddleware(metrics))

	stop := NewSafetyHandler(esm, recoveries.orch)
	r.GET("/health", stop.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/emergency-stop", stop.GetEmergencyStop)
	r.POST("/emergency-stop", stop.TriggerEmergencyStop)
	r.POST("/emergency-stop/reset", stop.ResetEmergencyStop)

	api := r.Group("/api")

	p := api.Group("/plans")
	p.POST("", plans.RegisterPlan)
	p.GET("", plans.ListPlans)
	p.GET("/:plan_id", plans.GetPlan)
	p.DELETE("/:plan_id", plans.DeletePlan)
	p.GET("/:plan_id/schedule", plans.GetSchedule)
	p.GET("/:plan_id/graph", plans.GetGraph)

	rec := api.Group("/recoveries")
	rec.POST("", recoveries.StartRecovery)
	rec.GET("", recoveries.ListRecoveries)
	rec.GET("/:execution_id", recoveries.GetRecovery)
	rec.POST("/:execution_id/cancel", recoveries.CancelRecovery)
	rec.POST("/:execution_id/pause", recoveries.PauseRecovery)
	rec.POST("/:execution_id/resume", recoveries.ResumeRecovery)
	rec.GET("/:execution_id/stream", recoveries.StreamRecovery)

	return r
}
