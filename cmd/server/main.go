package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apppayroll "github.com/farmpay/backend/internal/application/payroll"
	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/farmpay/backend/internal/infrastructure/auth"
	"github.com/farmpay/backend/internal/infrastructure/cache"
	"github.com/farmpay/backend/internal/infrastructure/config"
	"github.com/farmpay/backend/internal/infrastructure/event"
	"github.com/farmpay/backend/internal/infrastructure/logger"
	"github.com/farmpay/backend/internal/infrastructure/persistence"
	"github.com/farmpay/backend/internal/infrastructure/telemetry"
	"github.com/farmpay/backend/internal/interfaces/http/handler"
	"github.com/farmpay/backend/internal/interfaces/http/middleware"
	"github.com/farmpay/backend/internal/interfaces/http/router"
	"github.com/farmpay/backend/internal/interfaces/rpc"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// A missing .env is fine; the environment and config.toml still apply
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	tel := setupTelemetry(ctx, cfg, log)
	log = tel.logger
	defer tel.shutdown(log)

	log.Info("Starting farmpay ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
	)

	db, err := persistence.NewDatabase(cfg.Database, persistence.WithLogger(
		logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh),
	))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Database.Driver == config.DriverSQLite {
		// PostgreSQL schemas are owned by cmd/migrate
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate SQLite schema", zap.Error(err))
		}
	}
	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        dbSystem(cfg.Database.Driver),
	}, log)
	if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
		log.Warn("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully")

	store, err := cache.NewIdempotencyStore(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	bus := event.NewInMemoryEventBus(log)
	ledgerMetrics, err := telemetry.NewLedgerMetrics(tel.meters.Meter("farmpay/ledger"))
	if err != nil {
		log.Fatal("Failed to create ledger metrics", zap.Error(err))
	}
	bus.Subscribe(ledgerMetrics)
	if cfg.Events.KafkaEnabled {
		closeForwarder := subscribeKafka(cfg.Events, bus, store, log)
		defer closeForwarder()
	}
	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() { _ = bus.Stop(context.Background()) }()

	dispatcher := rpc.NewDispatcher(newServices(db, bus, cfg.Ledger, log),
		rpc.WithIdempotencyStore(store, cfg.Ledger.RequestTTL),
		rpc.WithMetrics(ledgerMetrics),
		rpc.WithLogger(log),
	)

	authCfg := middleware.AuthConfig{SkipPaths: []string{"/health"}, Logger: log}
	if jwtService := auth.NewJWTService(cfg.HTTP); jwtService.Enabled() {
		authCfg.Validator = jwtService
	} else {
		log.Warn("JWT secret not configured; RPC calls are accepted without a bearer token")
	}

	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: tel.tracer.IsEnabled(),
		Meter:          tel.meters.Meter("farmpay/http"),
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Auth:           authCfg,
		Logger:         log,
	})
	if err != nil {
		log.Fatal("Failed to create HTTP engine", zap.Error(err))
	}
	router.NewRouter(engine).
		RegisterRoot(handler.NewHealthHandler(db, telemetry.ServiceVersion)).
		Register(handler.NewRPCHandler(dispatcher, log)).
		Setup()

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr), zap.Strings("methods", dispatcher.Methods()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited gracefully", zap.Int64("event_handler_failures", bus.Failures()))
}

func newServices(db *persistence.Database, bus *event.InMemoryEventBus, cfg config.LedgerConfig, log *zap.Logger) rpc.Services {
	uow := apppayroll.NewUnitOfWork(persistence.NewGormTransactionScope(db.DB, cfg.LockTimeout), bus, log)
	recorder := apppayroll.NewAuditTrailRecorder(uow, log)
	aggregator := apppayroll.NewWorkerBalanceAggregator(uow, recorder, log)
	allocator := apppayroll.NewDebtAllocator(uow, aggregator, recorder, log)
	ledger := apppayroll.NewPaymentLedger(apppayroll.PaymentLedgerConfig{
		UnitOfWork: uow,
		Allocator:  allocator,
		Aggregator: aggregator,
		Recorder:   recorder,
		Logger:     log,
	})
	return rpc.Services{
		Ledger:     ledger,
		Allocator:  allocator,
		Aggregator: aggregator,
		Recorder:   recorder,
		Bulk:       apppayroll.NewBulkOperationCoordinator(uow, ledger, cfg.MaxBatchSize, log),
	}
}

// subscribeKafka forwards every committed ledger event to Kafka. Deliveries
// are deduplicated by event id so a retried publish is written once.
func subscribeKafka(cfg config.EventsConfig, bus *event.InMemoryEventBus, store shared.IdempotencyStore, log *zap.Logger) func() {
	writer, err := event.NewKafkaWriter(event.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
	if err != nil {
		log.Fatal("Failed to create Kafka writer", zap.Error(err))
	}
	forwarder := event.NewKafkaForwarder(writer, event.NewLedgerEventSerializer(), log)
	bus.Subscribe(event.NewIdempotentHandler(forwarder, store, log,
		event.WithKeyPrefix("kafka:"), event.WithDeliveryAttempts(3, 200*time.Millisecond)))
	log.Info("Forwarding ledger events to Kafka",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopic),
	)
	return func() {
		if err := forwarder.Close(); err != nil {
			log.Error("Error closing Kafka forwarder", zap.Error(err))
		}
	}
}

func dbSystem(driver string) string {
	if driver == config.DriverSQLite {
		return "sqlite"
	}
	return "postgresql"
}
