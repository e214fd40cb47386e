package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/drorchestrator/backend-go/internal/arbiter"
	"github.com/drorchestrator/backend-go/internal/config"
	"github.com/drorchestrator/backend-go/internal/db"
	"github.com/drorchestrator/backend-go/internal/domain"
	"github.com/drorchestrator/backend-go/internal/engine"
	"github.com/drorchestrator/backend-go/internal/handler"
	"github.com/drorchestrator/backend-go/internal/notify"
	"github.com/drorchestrator/backend-go/internal/observability"
	"github.com/drorchestrator/backend-go/internal/plan"
	"github.com/drorchestrator/backend-go/internal/probe"
	"github.com/drorchestrator/backend-go/internal/restore"
	"github.com/drorchestrator/backend-go/internal/retry"
	"github.com/drorchestrator/backend-go/internal/safety"
	"github.com/drorchestrator/backend-go/internal/scheduler"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	esm := safety.NewEmergencyStop()
	bus := notify.NewBus(0)

	// Restorers: simulated for every type, replaced by real backends when enabled
	restorers := restore.NewRegistry()
	sim := &restore.Simulated{TimeScale: cfg.SimulationTimeScale}
	for _, t := range domain.ComponentTypes {
		restorers.Register(t, sim)
	}

	probes := &probe.Builder{}
	actions := &engine.ActionRunner{}

	if cfg.AWSEnabled {
		aws, err := restore.NewAwsRestorers(ctx, cfg.AWSRegion)
		if err != nil {
			log.Printf("AWS restorers disabled: %v", err)
		} else {
			restorers.Register(domain.ComponentDatabase, aws.Database)
			restorers.Register(domain.ComponentStorage, aws.Storage)
			log.Printf("AWS restorers enabled (region %s)", cfg.AWSRegion)
		}
	}

	if cfg.K8sEnabled {
		k8s, err := restore.NewK8sRestorer(cfg.KubeConfig)
		if err != nil {
			log.Printf("Kubernetes restorers disabled: %v", err)
		} else {
			restorers.Register(domain.ComponentApplication, k8s)
			restorers.Register(domain.ComponentConfiguration, k8s)
			restorers.Register(domain.ComponentSecrets, k8s)
			probes.Clientset = k8s.Clientset()
			actions.Pods = k8s
			log.Println("Kubernetes restorers enabled")
		}
	}

	alerts := notify.MultiAlertSink{notify.LogAlertSink{}}
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := notify.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Printf("Redis disabled: %v", err)
		} else {
			redisClient = client
			pub := notify.NewRedisPublisher(client)
			bus.Forward(pub)
			alerts = append(alerts, pub)
			restorers.Register(domain.ComponentCache, restore.NewCacheRestorer(client))
			log.Println("Redis events, alerts and cache restores enabled")
		}
	}
	// forwarders drain into Redis, so the bus closes first
	defer func() {
		bus.Close()
		if redisClient != nil {
			redisClient.Close()
		}
	}()

	deps := engine.Deps{
		Restorers:     restorers,
		Probes:        probes,
		EmergencyStop: esm,
		Rollbacks:     safety.NewRollbackManager(),
		Events:        bus,
		Alerts:        alerts,
		Metrics:       metrics,
	}

	var reader handler.ExecutionReader
	store, closeStore, err := db.OpenStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Printf("execution store disabled, history is in-memory only: %v", err)
		deps.Snapshots = safety.NewSnapshotManager(nil)
	} else {
		defer closeStore()
		deps.Store = store
		deps.Snapshots = safety.NewSnapshotManager(store)
		reader = store
	}

	plans := plan.NewRegistry()
	if cfg.PlansDir != "" {
		ids, err := plan.LoadDir(plans, cfg.PlansDir)
		if err != nil {
			log.Fatalf("failed to load plans: %v", err)
		}
		log.Printf("loaded %d plans from %s", len(ids), cfg.PlansDir)
	}
	deps.Plans = plans

	deps.Arbiter = arbiter.New(domain.ResourceRequirements{
		CPUMillis:   cfg.PoolCPUMillis,
		MemoryMB:    cfg.PoolMemoryMB,
		DiskMB:      cfg.PoolDiskMB,
		NetworkMbps: cfg.PoolNetworkMbps,
	})

	policy := retry.Policy{
		MaxAttempts: cfg.MaxComponentRetries,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Multiplier:  cfg.RetryMultiplier,
	}
	deps.Executor = engine.NewComponentExecutor(restorers, deps.Arbiter, probes, actions, policy, cfg.RestoreTimeout)

	orch := engine.NewOrchestrator(deps, engine.Options{
		MaxParallel:  cfg.MaxParallelComponents,
		HistorySize:  cfg.HistorySize,
		AutoRollback: cfg.AutoRollback,
	})

	drills, err := scheduler.ParseDrills(cfg.DrillSchedules)
	if err != nil {
		log.Fatalf("invalid DRILL_SCHEDULES: %v", err)
	}
	sched := scheduler.New(orch)
	for _, d := range drills {
		if err := sched.Add(d); err != nil {
			log.Fatalf("failed to schedule drill: %v", err)
		}
	}
	sched.Start()

	r := handler.SetupRouter(
		handler.NewPlanHandler(plans),
		handler.NewRecoveryHandler(orch, bus, reader),
		esm,
		metrics,
		cfg.CORSAllowOrigin,
	)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("recovery orchestrator starting on :%s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	<-sched.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
