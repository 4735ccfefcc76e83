// Command orchestrator wires every graflow component into a single
// running process: a Store backend, the service layer, the execution
// engine, the retry scheduler, the async result ingress, and the thin
// REST surface. Grounded on the teacher's examples/ecommerce/main.go
// wiring order and its signal-driven graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/graflow/graflow"
	"github.com/graflow/graflow/api"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		logger.Error("orchestrator exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := graflow.LoadConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.EventsLogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, tx, closeStore, err := openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var bus graflow.EventBus = graflow.NewInProcessEventBus()
	if cfg.EventsEnabled {
		bus.Subscribe(func(e graflow.Event) {
			logger.Info("event",
				"workflow", e.Workflow, "task", e.Task, "review", e.Review,
				"correlationId", e.CorrelationID, "workflowExecutionId", e.WorkflowExecutionID)
		})
	}

	publisher, consumer, closeQueue, err := openQueue(ctx)
	if err != nil {
		return err
	}
	defer closeQueue()

	registry := graflow.NewRegistry()
	registry.Register(graflow.WrapRecovering(graflow.NewHTTPTaskExecutor()))

	retryPolicy := cfg.RetryPolicy()

	workflows := graflow.NewWorkflowService(store, tx, bus, logger)
	tasks := graflow.NewTaskService(store, tx, registry, bus, retryPolicy, logger)
	reviews := graflow.NewReviewService(store, tx, tasks, bus, logger)

	strategyPool := graflow.NewWorkerPool(cfg.ThreadPoolSize)
	strategies := graflow.NewStrategyRegistry()
	strategies.Register(graflow.StrategySequential, graflow.NewSequentialStrategy(tasks, workflows, reviews, publisher))
	strategies.Register(graflow.StrategyParallel, graflow.NewParallelStrategy(tasks, workflows, reviews, strategyPool, publisher))
	strategies.Register(graflow.StrategyConditional, graflow.NewConditionalStrategy(tasks, workflows, reviews, graflow.NewConditionEvaluator(), publisher))

	pool := graflow.NewWorkerPool(cfg.ThreadPoolSize)
	engine := graflow.NewEngine(store, workflows, tasks, strategies, reviews, pool, bus, logger)
	monitor := graflow.NewMonitor(workflows, store)

	tickInterval := time.Duration(cfg.SchedulerTickSeconds) * time.Second
	pausedThreshold := time.Duration(cfg.RetentionTerminalDays) * 24 * time.Hour
	retentionPeriod := pausedThreshold
	scheduler := graflow.NewRetryScheduler(tasks, workflows, engine, tickInterval, pausedThreshold, retentionPeriod, logger)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	ingress := graflow.NewResultIngress(consumer, tasks, workflows, engine, logger)
	ingress.Start(ctx)
	defer ingress.Stop()

	server := api.NewServer(store, workflows, reviews, engine, monitor)
	httpServer := &http.Server{
		Addr:    httpAddr(),
		Handler: server.Mux(),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("orchestrator: listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("orchestrator: shutting down")
	case err := <-serveErr:
		logger.Error("orchestrator: http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// openStore selects the Store/TxManager pair per GRAFLOW_STORE_BACKEND
// (memory|sqlite|postgres, default memory) and returns a cleanup func for
// whatever connection it opened.
func openStore(ctx context.Context, logger *slog.Logger) (graflow.Store, graflow.TxManager, func(), error) {
	switch backend := os.Getenv("GRAFLOW_STORE_BACKEND"); backend {
	case "", "memory":
		logger.Info("orchestrator: using in-memory store")
		return graflow.NewMemoryStore(), graflow.MemoryTxManager{}, func() {}, nil

	case "sqlite":
		dsn := os.Getenv("GRAFLOW_SQLITE_PATH")
		if dsn == "" {
			dsn = "graflow.db"
		}
		logger.Info("orchestrator: using sqlite store", "path", dsn)
		store, err := graflow.OpenSQLiteStore(ctx, dsn)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, graflow.NewSQLiteTxManager(store.DB()), func() { _ = store.DB().Close() }, nil

	case "postgres":
		dsn := os.Getenv("GRAFLOW_DATABASE_URL")
		logger.Info("orchestrator: using postgres store")
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := graflow.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		store := graflow.NewPostgresStore(pool)
		return store, graflow.NewPgxTxManager(pool), pool.Close, nil

	default:
		return nil, nil, nil, unknownBackendErrorf("GRAFLOW_STORE_BACKEND", backend)
	}
}

// openQueue selects the task-dispatch/task-result transport per
// GRAFLOW_QUEUE_BACKEND (inprocess|redis, default inprocess).
func openQueue(ctx context.Context) (graflow.Publisher, graflow.Consumer, func(), error) {
	switch backend := os.Getenv("GRAFLOW_QUEUE_BACKEND"); backend {
	case "", "inprocess":
		q := graflow.NewChannelQueue(256)
		return q, q, func() {}, nil

	case "redis":
		addr := os.Getenv("GRAFLOW_REDIS_ADDR")
		if addr == "" {
			addr = "localhost:6379"
		}
		client := redis.NewClient(&redis.Options{Addr: addr})
		q, err := graflow.NewRedisStreamsQueue(ctx, client, "graflow:dispatch", "graflow:results", "graflow-workers", "orchestrator")
		if err != nil {
			return nil, nil, nil, err
		}
		return q, q, func() { _ = client.Close() }, nil

	default:
		return nil, nil, nil, unknownBackendErrorf("GRAFLOW_QUEUE_BACKEND", backend)
	}
}

func httpAddr() string {
	if addr := os.Getenv("GRAFLOW_HTTP_ADDR"); addr != "" {
		return addr
	}
	return ":8080"
}

func logLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

type unknownBackendError string

func (e unknownBackendError) Error() string { return string(e) }

func unknownBackendErrorf(envVar, value string) error {
	return unknownBackendError(envVar + ": unknown backend " + strconv.Quote(value))
}
