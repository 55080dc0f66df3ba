package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopcore/stockhold/internal/application/reservation"
	"github.com/shopcore/stockhold/internal/domain/shared"
	"github.com/shopcore/stockhold/internal/domain/stock"
	"github.com/shopcore/stockhold/internal/infrastructure/cache"
	"github.com/shopcore/stockhold/internal/infrastructure/config"
	"github.com/shopcore/stockhold/internal/infrastructure/event"
	"github.com/shopcore/stockhold/internal/infrastructure/lock"
	"github.com/shopcore/stockhold/internal/infrastructure/logger"
	"github.com/shopcore/stockhold/internal/infrastructure/messaging"
	"github.com/shopcore/stockhold/internal/infrastructure/migration"
	"github.com/shopcore/stockhold/internal/infrastructure/persistence"
	"github.com/shopcore/stockhold/internal/infrastructure/persistence/memory"
	"github.com/shopcore/stockhold/internal/infrastructure/scheduler"
	"github.com/shopcore/stockhold/internal/infrastructure/telemetry"
	"github.com/shopcore/stockhold/internal/interfaces/http/handler"
	"github.com/shopcore/stockhold/internal/interfaces/http/middleware"
	"github.com/shopcore/stockhold/internal/interfaces/http/router"
	"go.uber.org/zap"
)

// storage bundles the repositories the application layer runs on
type storage struct {
	stockRepo       stock.StockRepository
	reservationRepo stock.ReservationRepository
	txScope         reservation.TransactionScope
	catalog         stock.Catalog
	carts           stock.CartReader
	ping            handler.Pinger
	close           func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting stockhold",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("database", cfg.Database.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}

	// Redis backs the distributed lock, the catalog cache and message dedup
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	store, err := openStorage(ctx, cfg, meterProvider, redisClient, log)
	if err != nil {
		log.Fatal("Failed to open storage", zap.Error(err))
	}
	defer func() {
		if err := store.close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	var locker reservation.SKULocker = lock.NewKeyedLocker()
	if cfg.Reservation.LockDriver == config.LockDriverRedis {
		locker = lock.NewRedisLocker(redisClient, cfg.Reservation.LockLease, log,
			lock.WithKeyPrefix(cfg.App.Name+":lock:"))
	}

	policy, err := reservation.ParseLateCommitPolicy(cfg.Reservation.LateCommitPolicy)
	if err != nil {
		log.Fatal("Invalid late commit policy", zap.Error(err))
	}
	managerCfg := reservation.Config{
		TTL:        cfg.Reservation.TTL,
		LockWait:   cfg.Reservation.LockWait,
		LateCommit: policy,
	}

	manager := reservation.NewManager(store.stockRepo, store.reservationRepo, store.txScope, locker, managerCfg, log)
	stockService := reservation.NewStockService(store.stockRepo, store.reservationRepo, store.txScope, locker, managerCfg.LockWait, log)
	validator := reservation.NewValidator(manager, store.catalog, store.carts, log)
	finalizer := reservation.NewOrderFinalizedHandler(manager, log)
	sweeper := reservation.NewSweeper(manager, store.reservationRepo, cfg.Sweeper.BatchSize, log)

	reservationMetrics, err := telemetry.NewReservationMetrics(telemetry.ReservationMetricsConfig{
		Meter:         meterProvider.Meter("stockhold.reservation"),
		Logger:        log,
		StockProvider: stockService,
	})
	if err != nil {
		log.Fatal("Failed to initialize reservation metrics", zap.Error(err))
	}
	manager.SetMetrics(reservationMetrics)
	stockService.SetMetrics(reservationMetrics)
	sweeper.SetMetrics(reservationMetrics)
	reservationMetrics.StartPeriodicCollection(ctx, time.Minute)
	defer reservationMetrics.Stop()

	// Domain events
	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(reservation.NewLowStockHandler(15*time.Minute, log))
	manager.SetEventPublisher(eventBus)
	stockService.SetEventPublisher(eventBus)
	finalizer.SetEventPublisher(eventBus)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	var idempotencyStore shared.IdempotencyStore
	if cfg.Idempotency.Enabled {
		var client redis.UniversalClient
		if redisClient != nil {
			client = redisClient
		}
		idempotencyStore, err = cache.NewIdempotencyStoreFactory(client,
			cache.WithLogger(log),
			cache.WithInMemoryFallback(!cfg.Kafka.Enabled || cfg.App.Env != "production"),
		).CreateStore()
		if err != nil {
			log.Fatal("Failed to create idempotency store", zap.Error(err))
		}
		defer idempotencyStore.Close()
	}

	if cfg.Kafka.Enabled {
		startMessaging(ctx, cfg, eventBus, finalizer, idempotencyStore, log)
	}

	// Expiration sweeper
	var sweepTrigger *scheduler.IntervalTrigger
	if cfg.Sweeper.Enabled {
		sweepTrigger, err = scheduler.NewIntervalTrigger(scheduler.IntervalTriggerConfig{
			Name:       "reservation_sweeper",
			Interval:   cfg.Sweeper.Interval,
			RunOnStart: true,
			RunTimeout: cfg.Sweeper.Interval,
		}, func(ctx context.Context) error {
			_, err := sweeper.Sweep(ctx)
			return err
		}, log)
		if err != nil {
			log.Fatal("Failed to create sweeper trigger", zap.Error(err))
		}
		if err := sweepTrigger.Start(ctx); err != nil {
			log.Fatal("Failed to start sweeper", zap.Error(err))
		}
	}

	engine := newEngine(cfg, meterProvider, log)

	router.Mount(engine, router.APIVersion, router.Groups(router.Handlers{
		Stock:       handler.NewStockHandler(manager, validator, stockService),
		Reservation: handler.NewReservationHandler(manager, stockService),
		Cart:        handler.NewCartHandler(validator),
		Order:       handler.NewOrderHandler(finalizer),
		Admin:       handler.NewAdminHandler(sweeper),
		AdminMiddleware: []gin.HandlerFunc{
			middleware.RateLimit(middleware.NewRateLimiter(10, time.Minute)),
		},
	})...)
	engine.GET("/health", handler.NewHealthHandler(store.ping).Health)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if sweepTrigger != nil {
		if err := sweepTrigger.Stop(shutdownCtx); err != nil {
			log.Warn("Sweeper did not stop cleanly", zap.Error(err))
		}
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Warn("Event bus did not stop cleanly", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Meter provider shutdown failed", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Tracer provider shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// openStorage connects the configured database. Postgres is brought to the
// latest migration, sqlite is auto-migrated and memory needs neither.
func openStorage(
	ctx context.Context,
	cfg *config.Config,
	meterProvider *telemetry.MeterProvider,
	redisClient *redis.Client,
	log *zap.Logger,
) (*storage, error) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn("Using in-memory storage; reservations are lost on restart")
		mem := memory.NewStore()
		return &storage{
			stockRepo:       mem.StockRepo(),
			reservationRepo: mem.ReservationRepo(),
			txScope:         mem,
			close:           func() error { return nil },
		}, nil
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
	)
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		return nil, err
	}
	log.Info("Database connected successfully")

	sqlDB := db.SQL()

	if db.Driver == config.DriverSQLite {
		if err := db.AutoMigrate(); err != nil {
			return nil, err
		}
	} else {
		migrator, err := migration.New(sqlDB, migration.Source(""), log)
		if err != nil {
			return nil, err
		}
		if err := migrator.Up(); err != nil {
			return nil, err
		}
	}

	tracingCfg := telemetry.DefaultDBTracingConfig()
	tracingCfg.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	tracingCfg.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	if cfg.Telemetry.DBSlowQueryThresh > 0 {
		tracingCfg.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
	}
	if db.Driver == config.DriverSQLite {
		tracingCfg.DBSystem = "sqlite"
	}
	if err := telemetry.NewDBTracingPlugin(tracingCfg, log).RegisterOtelGorm(db.DB); err != nil {
		return nil, err
	}

	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider, telemetry.DefaultDBMetricsConfig(), log)
	if err != nil {
		return nil, err
	}
	if dbMetrics != nil {
		dbMetrics.SetSQLDB(sqlDB)
		dbMetrics.StartPoolStatsCollection(ctx)
	}

	var catalog stock.Catalog = persistence.NewGormCatalog(db.DB)
	if cfg.Catalog.CacheTTL > 0 {
		var opts []cache.CachedCatalogOption
		if redisClient != nil {
			opts = append(opts, cache.WithRedisL2(redisClient))
		}
		catalog = cache.NewCachedCatalog(catalog, cfg.Catalog.CacheTTL, log, opts...)
	}

	return &storage{
		stockRepo:       persistence.NewGormStockRepository(db.DB),
		reservationRepo: persistence.NewGormReservationRepository(db.DB),
		txScope:         db.TransactionScope(),
		catalog:         catalog,
		carts:           persistence.NewGormCartReader(db.DB),
		ping:            db.Ping,
		close: func() error {
			if dbMetrics != nil {
				dbMetrics.Stop()
			}
			return db.Close()
		},
	}, nil
}

// startMessaging consumes OrderFinalized messages and, when an event topic is
// configured, forwards domain events to Kafka.
func startMessaging(
	ctx context.Context,
	cfg *config.Config,
	eventBus *event.InMemoryEventBus,
	finalizer *reservation.OrderFinalizedHandler,
	idempotencyStore shared.IdempotencyStore,
	log *zap.Logger,
) {
	serializer := event.NewEventSerializer()
	event.RegisterStockEvents(serializer)

	var orderHandler shared.EventHandler = finalizer
	if idempotencyStore != nil {
		orderHandler = event.NewIdempotentHandler(finalizer, idempotencyStore, log,
			event.WithIdempotencyConfig(shared.IdempotencyConfig{Enabled: true, TTL: cfg.Idempotency.TTL}),
		)
	}

	consumer := messaging.NewOrderFinalizedConsumer(
		messaging.NewReader(cfg.Kafka),
		serializer,
		orderHandler,
		messaging.ConsumerConfig{MaxRetries: cfg.Kafka.MaxRetries, RetryBackoff: cfg.Kafka.RetryBackoff},
		log,
	)
	go func() {
		defer consumer.Close()
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Order consumer stopped", zap.Error(err))
		}
	}()

	if cfg.Kafka.EventTopic != "" {
		forwarder := messaging.NewEventForwarder(messaging.NewWriter(cfg.Kafka), serializer, log)
		eventBus.Subscribe(forwarder)
		go func() {
			<-ctx.Done()
			_ = forwarder.Close()
		}()
	}

	log.Info("Kafka messaging started",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("order_topic", cfg.Kafka.OrderTopic),
		zap.String("event_topic", cfg.Kafka.EventTopic),
	)
}

// newEngine builds the gin engine with the middleware chain. Tracing comes
// before SpanEnricher, which reads its span.
func newEngine(cfg *config.Config, meterProvider *telemetry.MeterProvider, log *zap.Logger) *gin.Engine {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Invalid trusted proxies", zap.Error(err))
		}
	} else {
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanEnricher())
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: meterProvider,
		Enabled:       cfg.Telemetry.MetricsEnabled,
	}))

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))
	engine.Use(middleware.Secure())
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(limiter))
	}
	engine.Use(middleware.Timeout(cfg.HTTP.WriteTimeout))

	return engine
}
