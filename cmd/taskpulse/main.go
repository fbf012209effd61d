package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/djlord-it/taskpulse/internal/api"
	"github.com/djlord-it/taskpulse/internal/circuitbreaker"
	"github.com/djlord-it/taskpulse/internal/config"
	"github.com/djlord-it/taskpulse/internal/dispatcher"
	"github.com/djlord-it/taskpulse/internal/domain"
	"github.com/djlord-it/taskpulse/internal/events"
	"github.com/djlord-it/taskpulse/internal/handlers"
	"github.com/djlord-it/taskpulse/internal/idempotency"
	"github.com/djlord-it/taskpulse/internal/leaderelection"
	"github.com/djlord-it/taskpulse/internal/metrics"
	"github.com/djlord-it/taskpulse/internal/notify"
	"github.com/djlord-it/taskpulse/internal/scheduler"
	"github.com/djlord-it/taskpulse/internal/statestore"
	"github.com/djlord-it/taskpulse/internal/store/postgres"
	"github.com/djlord-it/taskpulse/internal/transport/channel"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`taskpulse - event-driven task automation service

Usage:
  taskpulse <command>

Commands:
  serve      Start the event subscriber, reminder scheduler, and dispatcher
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  BROKER_HOST               Broker sidecar host (default: "localhost")
  BROKER_HTTP_PORT          Broker sidecar HTTP port (default: "3500")
  PUBSUB_NAME               Pub/sub component name (default: "pubsub")
  STATE_STORE_NAME          State store component name (default: "statestore")
  HTTP_ADDR                 HTTP server address (default: ":8080", PORT also honored)
  DATABASE_URL              PostgreSQL connection string (optional)
  REDIS_ADDR                Redis address for the idempotency ledger (optional)

  PUBLISH_TIMEOUT           Event publish timeout (default: "5s")
  CB_FAILURE_THRESHOLD      Circuit breaker failure threshold (default: "5")
  CB_RESET_TIMEOUT          Circuit breaker reset timeout (default: "60s")
  IDEMPOTENCY_TTL           Redis ledger entry TTL, 0 keeps forever (default: "24h")

  TICK_INTERVAL             Reminder scheduler tick interval (default: "30s")
  REMINDER_BATCH_SIZE       Max reminders fired per tick (default: "100")
  EVENTBUS_BUFFER_SIZE      Fired-reminder buffer size (default: "100")
  DISPATCHER_DRAIN_TIMEOUT  Dispatcher drain timeout on shutdown (default: "30s")
  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")

  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")

  MESSAGE_WINDOW_SIZE       Conversation context window (default: "50")
  MAX_MESSAGES              Conversation history cap (default: "200")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")
  METRICS_PORT              Metrics server port (default: "9090")

  LEADER_ENABLED            Enable leader election for reminder firing (default: "false")
  LEADER_LOCK_KEY           Advisory lock key shared by all instances (default: "918273")
  LEADER_RETRY_INTERVAL     Follower lock retry interval (default: "5s")
  LEADER_HEARTBEAT_INTERVAL Leader connection heartbeat (default: "2s")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	// Metrics sink (optional)
	var sink metrics.Sink = metrics.NewNoopSink()
	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		sink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    ":" + cfg.MetricsPort,
			Handler: metricsMux,
		}
		go func() {
			log.Printf("taskpulse: metrics server listening on :%s", cfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("taskpulse: metrics server error: %v", err)
			}
		}()
	} else {
		log.Println("taskpulse: METRICS_ENABLED not set; metrics disabled")
	}

	// Postgres (optional): task persistence, reminder storage, notifications.
	var db *sql.DB
	var store *postgres.Store
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
			return exitRuntimeError
		}
		defer db.Close()

		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
		db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

		if err := db.Ping(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
			return exitRuntimeError
		}
		store = postgres.New(db, cfg.DBOpTimeout)
		log.Printf("taskpulse: database connected (max_open=%d, max_idle=%d)", cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	} else {
		log.Println("taskpulse: DATABASE_URL not set; using in-memory reminder store, recurring tasks disabled")
	}

	// Idempotency ledger: Redis when configured, else process-local.
	var ledger idempotency.Ledger
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		ledger = idempotency.NewRedisLedger(redisClient, cfg.IdempotencyTTL)
		log.Printf("taskpulse: idempotency ledger on redis (addr=%s, ttl=%s)", cfg.RedisAddr, cfg.IdempotencyTTL)
	} else {
		ledger = idempotency.NewMemory()
		log.Println("taskpulse: REDIS_ADDR not set; idempotency ledger is process-local")
	}

	publisher := events.NewPublisher(cfg.BrokerBaseURL(), domain.SourceBackend, cfg.PublishTimeout).
		WithMetrics(sink)
	breakers := circuitbreaker.NewRegistry(cfg.BreakerThreshold, cfg.BreakerResetTimeout).
		WithMetrics(sink)

	bus := channel.NewEventBus(cfg.EventBusBufferSize, channel.WithMetrics(sink))

	var reminderStore scheduler.ReminderStore
	if store != nil {
		reminderStore = store
	} else {
		reminderStore = scheduler.NewMemoryStore()
	}

	sched := scheduler.New(
		scheduler.Config{TickInterval: cfg.TickInterval, BatchSize: cfg.ReminderBatchSize},
		reminderStore,
		bus,
	).WithMetrics(sink)

	disp := dispatcher.New(publisher, cfg.DispatcherDrainTimeout)

	var notifier handlers.Notifier = notify.NewLogNotifier()
	if store != nil {
		notifier = store
	}

	h := handlers.New(ledger, publisher, sched, notifier, breakers).WithMetrics(sink)
	if store != nil {
		h = h.WithTaskStore(store)
	}

	stateClient := statestore.NewClient(cfg.StateStoreBaseURL(), cfg.PublishTimeout)

	apiHandler := api.NewHandler(h, cfg.PubSubName).
		WithHealthCheck("statestore", stateClient)
	if store != nil {
		apiHandler = apiHandler.WithHealthCheck("database", store)
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiHandler,
	}
	go func() {
		log.Printf("taskpulse: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("taskpulse: http server error: %v", err)
		}
	}()

	// Separate contexts for scheduler and dispatcher enable ordered shutdown:
	// stop firing first, then drain what was already fired.
	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())

	var schedulerWg sync.WaitGroup
	var dispatcherWg sync.WaitGroup
	var electorWg sync.WaitGroup

	if cfg.LeaderEnabled && db != nil {
		// Only the leader fires reminders; every instance still consumes
		// events and schedules them.
		elector := leaderelection.New(
			db,
			cfg.LeaderLockKey,
			cfg.LeaderRetryInterval,
			cfg.LeaderHeartbeatInterval,
			func(leaderCtx context.Context) {
				schedulerWg.Add(1)
				go func() {
					defer schedulerWg.Done()
					sched.Run(leaderCtx)
				}()
			},
			func() {
				schedulerWg.Wait()
			},
		)
		electorWg.Add(1)
		go func() {
			defer electorWg.Done()
			elector.Run(schedulerCtx)
		}()
		log.Printf("taskpulse: leader election enabled (lock_key=%d)", cfg.LeaderLockKey)
	} else {
		if cfg.LeaderEnabled {
			log.Println("taskpulse: LEADER_ENABLED requires DATABASE_URL; running scheduler unguarded")
		}
		schedulerWg.Add(1)
		go func() {
			defer schedulerWg.Done()
			sched.Run(schedulerCtx)
		}()
	}

	dispatcherWg.Add(1)
	go func() {
		defer dispatcherWg.Done()
		disp.Run(dispatcherCtx, bus.Channel())
	}()

	log.Printf("taskpulse: started (tick=%s, http=%s, broker=%s)", cfg.TickInterval, cfg.HTTPAddr, cfg.BrokerBaseURL())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("taskpulse: received signal %v, shutting down", received)

	// Phase 1: stop the scheduler (and elector) so no new reminders fire.
	log.Println("taskpulse: stopping scheduler...")
	cancelScheduler()
	electorWg.Wait()
	schedulerWg.Wait()
	log.Println("taskpulse: scheduler stopped")

	// Phase 2: stop the dispatcher; it drains buffered reminders first.
	log.Println("taskpulse: stopping dispatcher (draining reminders)...")
	cancelDispatcher()
	dispatcherWg.Wait()
	log.Println("taskpulse: dispatcher stopped")

	// Phase 3: stop the HTTP server so in-flight deliveries finish.
	log.Println("taskpulse: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("taskpulse: http server shutdown error: %v", err)
	}
	log.Println("taskpulse: http server stopped")

	// Phase 4: stop the metrics server if running.
	if metricsServer != nil {
		log.Println("taskpulse: stopping metrics server...")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			log.Printf("taskpulse: metrics server shutdown error: %v", err)
		}
		log.Println("taskpulse: metrics server stopped")
	}

	log.Println("taskpulse: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("taskpulse version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
