// Raptor-X Control Plane
//
// raptord is the Raptor-X control-plane daemon: it tracks benchmark SUT
// agents, proxies their capabilities, queues vision-inference jobs over a
// pool of detector backends, and drives automation runs and campaigns
// against the fleet.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/ShreyX24/Raptor-X-sub001/migrations"

	"github.com/ShreyX24/Raptor-X-sub001/internal/api"
	"github.com/ShreyX24/Raptor-X-sub001/internal/audit"
	"github.com/ShreyX24/Raptor-X-sub001/internal/device"
	"github.com/ShreyX24/Raptor-X-sub001/internal/gateway"
	"github.com/ShreyX24/Raptor-X-sub001/internal/inference"
	"github.com/ShreyX24/Raptor-X-sub001/internal/infrastructure/config"
	"github.com/ShreyX24/Raptor-X-sub001/internal/infrastructure/database"
	"github.com/ShreyX24/Raptor-X-sub001/internal/infrastructure/influxdb"
	"github.com/ShreyX24/Raptor-X-sub001/internal/infrastructure/logging"
	"github.com/ShreyX24/Raptor-X-sub001/internal/infrastructure/metrics"
	"github.com/ShreyX24/Raptor-X-sub001/internal/infrastructure/mqtt"
	"github.com/ShreyX24/Raptor-X-sub001/internal/orchestrator"
	"github.com/ShreyX24/Raptor-X-sub001/internal/workflow"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// queueStatsInterval is how often queue depth is published to MQTT.
const queueStatsInterval = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Raptor-X control plane",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	applied, migrateErr := db.Migrate(ctx)
	if migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete", "applied", applied)

	// Device registry and liveness monitor
	deviceRepo := device.NewSQLiteRepository(db.DB)
	registry := device.NewRegistry(deviceRepo)
	registry.SetLogger(log)

	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", registry.Count())

	monitor := device.NewMonitor(registry, device.MonitorConfig{
		StaleAfter:   time.Duration(cfg.Registry.StaleAfter) * time.Second,
		OfflineAfter: time.Duration(cfg.Registry.OfflineAfter) * time.Second,
		Interval:     time.Duration(cfg.Registry.MonitorInterval) * time.Second,
	})
	monitor.SetLogger(log)
	go monitor.Run(ctx)
	log.Info("liveness monitor started",
		"stale_after", cfg.Registry.StaleAfter,
		"offline_after", cfg.Registry.OfflineAfter,
	)

	// Prometheus metrics
	promMetrics := metrics.New()
	promMetrics.RegisterDeviceCount(func() float64 {
		return float64(registry.Count())
	})

	// Proxy gateway
	gw := gateway.New(registry, gateway.Config{
		ShortTimeout: time.Duration(cfg.Gateway.ShortTimeout) * time.Second,
		LongTimeout:  time.Duration(cfg.Gateway.LongTimeout) * time.Second,
	})
	gw.SetLogger(log)

	// Inference job queue over the enabled backend pool
	queue := inference.NewQueue(inference.Config{
		Backends:              enabledBackends(cfg.Inference.Backends),
		MaxDepth:              cfg.Inference.MaxDepth,
		MaxAttempts:           cfg.Inference.MaxAttempts,
		JobTimeout:            time.Duration(cfg.Inference.JobTimeout) * time.Second,
		PerBackendConcurrency: cfg.Inference.PerBackendConcurrency,
		ProbeInterval:         time.Duration(cfg.Inference.ProbeInterval) * time.Second,
		UnhealthyThreshold:    cfg.Inference.UnhealthyThreshold,
		HistorySize:           cfg.Inference.HistorySize,
		Defaults: inference.DetectConfig{
			ConfThreshold:    cfg.Inference.Defaults.ConfThreshold,
			OverlapThreshold: cfg.Inference.Defaults.OverlapThreshold,
			OCREngine:        cfg.Inference.Defaults.OCREngine,
			OCRConfThreshold: cfg.Inference.Defaults.OCRConfThreshold,
			PreScale:         cfg.Inference.Defaults.PreScale,
			InputSize:        cfg.Inference.Defaults.InputSize,
		},
	})
	queue.SetLogger(log)

	promMetrics.RegisterQueueDepth(func() float64 {
		return float64(queue.Stats().Depth)
	})

	// Workflow library
	library, err := workflow.NewLibrary(cfg.Orchestrator.WorkflowDir)
	if err != nil {
		return fmt.Errorf("loading workflow library: %w", err)
	}
	log.Info("workflow library loaded",
		"dir", cfg.Orchestrator.WorkflowDir,
		"workflows", library.Count(),
	)

	// Credential pool (optional)
	creds, err := buildCredentialPool(cfg.Credentials)
	if err != nil {
		return fmt.Errorf("building credential pool: %w", err)
	}

	// Audit trail of control-plane mutations
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Run orchestration
	runRepo := orchestrator.NewSQLiteRepository(db.DB)
	runner := orchestrator.NewRunner(gw, queue, library, runRepo, creds, orchestrator.RunnerConfig{
		DisplaySettle: time.Duration(cfg.Orchestrator.DisplaySettle) * time.Second,
		LaunchWait:    time.Duration(cfg.Orchestrator.LaunchWait) * time.Second,
		RestorePolicy: orchestrator.RestorePolicy(cfg.Orchestrator.RestoreDisplay),
	})
	runner.SetLogger(log)

	scheduler := orchestrator.NewScheduler(runner, runRepo, creds, orchestrator.SchedulerConfig{
		Workers: cfg.Orchestrator.Workers,
	})
	scheduler.SetLogger(log)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// WebSocket hub, created here so event fan-out can be wired before the
	// API server starts accepting connections.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	fanout := &eventFanout{
		hub:       hub,
		mqtt:      mqttClient,
		influx:    influxClient,
		metrics:   promMetrics,
		scheduler: scheduler,
		log:       log,
	}
	registry.SetEventFunc(fanout.deviceEvent)
	runner.SetEventFunc(fanout.runEvent)
	scheduler.SetEventFunc(fanout.runEvent)
	queue.SetCompletionFunc(fanout.jobCompleted)
	gw.SetMetrics(fanout)

	queue.Start()
	defer func() {
		log.Info("closing inference queue")
		queue.Close()
	}()
	log.Info("inference queue started",
		"backends", len(enabledBackends(cfg.Inference.Backends)),
		"max_depth", cfg.Inference.MaxDepth,
	)

	scheduler.Start(ctx)
	defer func() {
		log.Info("stopping scheduler")
		scheduler.Close()
	}()

	if mqttClient != nil {
		go publishQueueStats(ctx, mqttClient, queue, log)
	}

	// HTTP API server
	server, err := api.New(api.Deps{
		Config:         cfg.API,
		WS:             cfg.WebSocket,
		Security:       cfg.Security,
		RegistryCfg:    cfg.Registry,
		Logger:         log,
		Registry:       registry,
		Gateway:        gw,
		Queue:          queue,
		Scheduler:      scheduler,
		AgentKey:       cfg.Gateway.AgentKey,
		JobWaitTimeout: time.Duration(cfg.Inference.JobTimeout) * time.Second,
		MetricsHandler: promMetrics.Handler(),
		Audit:          auditRepo,
		ExternalHub:    hub,
		Version:        version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, scheduler, inference queue, InfluxDB, MQTT, database.

	log.Info("Raptor-X control plane stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses the RAPTORX_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("RAPTORX_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// enabledBackends extracts the URLs of backends enabled in configuration.
func enabledBackends(backends []config.BackendConfig) []string {
	urls := make([]string, 0, len(backends))
	for _, b := range backends {
		if b.Enabled {
			urls = append(urls, b.URL)
		}
	}
	return urls
}

// buildCredentialPool converts credential configuration into the
// orchestrator's pool. An empty configuration yields an empty pool;
// workflows that require credentials will fail at acquisition.
func buildCredentialPool(cfg config.CredentialsConfig) (*orchestrator.CredentialPool, error) {
	pairs := make([]orchestrator.CredentialPair, 0, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		cp := orchestrator.CredentialPair{Name: p.Name}
		for _, b := range p.Buckets {
			cp.Buckets = append(cp.Buckets, orchestrator.CredentialBucket{
				Range:  b.Range,
				User:   b.User,
				Secret: b.Secret,
			})
		}
		pairs = append(pairs, cp)
	}
	return orchestrator.NewCredentialPool(pairs)
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// eventFanout forwards domain lifecycle events to the WebSocket hub, the
// MQTT event bus, the InfluxDB sink, and the Prometheus counters. Domain
// packages stay free of infrastructure imports; this is the one place the
// two meet.
type eventFanout struct {
	hub       *api.Hub
	mqtt      *mqtt.Client
	influx    *influxdb.Client
	metrics   *metrics.Metrics
	scheduler *orchestrator.Scheduler
	log       *logging.Logger
}

// deviceEvent handles a device liveness transition.
func (f *eventFanout) deviceEvent(e device.Event) {
	// Emitters require non-blocking callbacks; MQTT publishes can wait on
	// the broker, so the fan-out runs detached.
	go func() {
		f.hub.Broadcast(api.ChannelDeviceStatus, e)

		if f.mqtt != nil {
			var topics mqtt.Topics
			if err := f.mqtt.PublishJSON(topics.DeviceStatus(e.DeviceID), e); err != nil {
				f.log.Warn("publishing device event", "device", e.DeviceID, "error", err)
			}
		}
	}()
}

// runEvent handles a run lifecycle transition.
func (f *eventFanout) runEvent(e orchestrator.Event) {
	go func() {
		f.hub.Broadcast(api.ChannelRunStatus, e)
		if e.CampaignID != "" {
			f.hub.Broadcast(api.ChannelCampaignStatus, e)
		}

		if f.mqtt != nil {
			var topics mqtt.Topics
			if err := f.mqtt.PublishJSON(topics.RunStatus(e.RunID), e); err != nil {
				f.log.Warn("publishing run event", "run", e.RunID, "error", err)
			}
			if e.CampaignID != "" {
				if err := f.mqtt.PublishJSON(topics.CampaignStatus(e.CampaignID), e); err != nil {
					f.log.Warn("publishing campaign event", "campaign", e.CampaignID, "error", err)
				}
			}
		}

		if !e.Status.Terminal() {
			return
		}

		f.metrics.RunCompleted(string(e.Status))

		if f.influx != nil {
			f.writeRunDuration(e)
		}
	}()
}

// writeRunDuration records the completed run's wall-clock duration.
func (f *eventFanout) writeRunDuration(e orchestrator.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run, err := f.scheduler.GetRun(ctx, e.RunID)
	if err != nil {
		f.log.Warn("looking up completed run for metrics", "run", e.RunID, "error", err)
		return
	}
	if run.StartedAt == nil || run.CompletedAt == nil {
		return
	}

	seconds := run.CompletedAt.Sub(*run.StartedAt).Seconds()
	f.influx.WriteRunDuration(run.DeviceID, run.WorkflowName, string(run.Status), seconds)
}

// jobCompleted handles an inference job reaching a terminal status.
func (f *eventFanout) jobCompleted(j inference.Job) {
	go func() {
		f.metrics.JobCompleted(string(j.Status))

		if f.influx == nil || j.DispatchedAt == nil || j.CompletedAt == nil {
			return
		}
		waitMS := float64(j.DispatchedAt.Sub(j.EnqueuedAt).Milliseconds())
		procMS := float64(j.CompletedAt.Sub(*j.DispatchedAt).Milliseconds())
		f.influx.WriteInferenceLatency(j.Backend, string(j.Status), waitMS, procMS)
	}()
}

// ObserveProxyCall satisfies gateway.Metrics, feeding both the Prometheus
// histogram and the InfluxDB sink.
func (f *eventFanout) ObserveProxyCall(op string, seconds float64, err error) {
	f.metrics.ObserveProxyCall(op, seconds, err)

	if f.influx != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		f.influx.WriteProxyLatency(op, outcome, seconds)
	}
}

// publishQueueStats periodically publishes queue depth and throughput to
// the MQTT event bus for dashboard consumption.
func publishQueueStats(ctx context.Context, client *mqtt.Client, queue *inference.Queue, log *logging.Logger) {
	var topics mqtt.Topics
	ticker := time.NewTicker(queueStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.PublishJSON(topics.QueueStats(), queue.Stats()); err != nil {
				log.Warn("publishing queue stats", "error", err)
			}
		}
	}
}
