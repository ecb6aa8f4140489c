// Package app wires the order engine's dependencies and runs the HTTP
// server.
package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/order"
	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/product"
	"github.com/SagheerHussain/crunchy-cookies-server/internal/domain/readmodel"
	"github.com/SagheerHussain/crunchy-cookies-server/internal/handler"
	"github.com/SagheerHussain/crunchy-cookies-server/internal/notify"
	"github.com/SagheerHussain/crunchy-cookies-server/internal/storage/postgres"
	"github.com/SagheerHussain/crunchy-cookies-server/internal/storage/rediscache"
	"github.com/SagheerHussain/crunchy-cookies-server/pkg/health"
	"github.com/SagheerHussain/crunchy-cookies-server/pkg/httpmiddleware"
)

const serviceName = "crunchy-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, pool.Ping)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	// Catalog, optionally behind the Redis price cache.
	var catalog product.Catalog = postgres.NewCatalog(pool)
	if cfg.Redis.Enabled {
		rdb, err := newRedisClient(cfg.Redis)
		if err != nil {
			return errors.Wrap(err, "create redis client")
		}
		defer func() { _ = rdb.Close() }()

		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		catalog = rediscache.NewCatalog(rdb, catalog, cfg.Redis.PriceTTL)
	}

	// Snapshot notifier.
	var publisher notify.Publisher = notify.NewLogPublisher(lg.Named("notify"))
	if len(cfg.Kafka.Brokers) > 0 {
		kp := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := kp.Close(); err != nil {
				lg.Warn("Close kafka writer", zap.Error(err))
			}
		}()
		healthSvc.AddReadinessCheck("kafka", 2*time.Second, kp.Ping)
		publisher = kp
	}
	meter := m.MeterProvider().Meter("github.com/SagheerHussain/crunchy-cookies-server")
	dispatcher, err := notify.NewDispatcher(publisher, lg.Named("notify"), meter, notify.Options{
		Timeout:    cfg.Notify.Timeout,
		MaxRetries: cfg.Notify.MaxRetries,
	})
	if err != nil {
		return errors.Wrap(err, "create notifier")
	}

	// Stores and domain services.
	orders := postgres.NewOrderStore(pool)
	views := postgres.NewReadModelStore(pool)

	reflector, err := readmodel.NewReflector(orders, views, meter, readmodel.Options{
		MaxRetries: cfg.Reflect.MaxRetries,
	})
	if err != nil {
		return errors.Wrap(err, "create reflector")
	}
	orderService := order.NewService(orders, catalog, reflector, dispatcher, m.TracerProvider())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.New(orderService, views).Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-Request-ID"},
				ExposeHeaders:    []string{"X-Request-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.Instrument(serviceName, m),
			httpmiddleware.LogRequests(),
		),
	}

	if err := healthSvc.Probe(ctx); err != nil {
		lg.Warn("Initial health probe failed", zap.Error(err))
	}
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		if err := dispatcher.Shutdown(shutdownCtx); err != nil {
			lg.Error("Pending order snapshots dropped", zap.Error(err))
		}
		healthSvc.Stop()
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

func newRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}
