package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/bookstore/internal/accounts"
	"github.com/joao-fontenele/bookstore/internal/auth"
	"github.com/joao-fontenele/bookstore/internal/cart"
	"github.com/joao-fontenele/bookstore/internal/catalog"
	"github.com/joao-fontenele/bookstore/internal/config"
	"github.com/joao-fontenele/bookstore/internal/httpapi"
	"github.com/joao-fontenele/bookstore/internal/messaging"
	"github.com/joao-fontenele/bookstore/internal/orders"
	"github.com/joao-fontenele/bookstore/internal/storage"
	"github.com/joao-fontenele/bookstore/internal/telemetry"
)

const serviceName = "bookstore"

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load("8080")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.PostgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, telemetry.TracingConfig{
		ServiceName:    serviceName,
		ServiceVersion: cfg.ServiceVersion,
		Endpoint:       cfg.OTLPEndpoint,
		SampleRatio:    cfg.TraceSampleRatio,
	})
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	instruments, err := telemetry.NewInstruments()
	if err != nil {
		logger.Error("failed to create instruments", "error", err)
		os.Exit(1)
	}

	db, err := telemetry.OpenPostgres(ctx, cfg.PostgresURL, cfg.DBSchema)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	rdb, err := storage.OpenRedis(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	var catalogStore catalog.Store = catalog.NewRepository(db)
	var bookInvalidator orders.BookInvalidator
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		cached := catalog.NewCachedStore(catalogStore, rdb, cfg.CatalogCacheTTL, logger)
		catalogStore, bookInvalidator = cached, cached
		logger.Info("catalog cache enabled", "ttl", cfg.CatalogCacheTTL)
	}

	var publisher orders.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.OrderEventsTopic, "order.placed")
		defer func() { _ = producer.Close() }()
		publisher = producer
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events will not be published")
	}

	cartRepo := cart.NewRepository(db)
	orderRepo := orders.NewOrderRepository(db)
	accountRepo := accounts.NewRepository(db)

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL).WithStaffLookup(accountRepo)

	catalogHandler := catalog.NewHandler(catalog.NewService(catalogStore, instruments, logger), logger)
	cartHandler := cart.NewHandler(cart.NewService(cartRepo, instruments, logger), logger)
	ordersHandler := orders.NewHandler(orders.NewService(orders.Deps{
		Store:     orderRepo,
		Carts:     cartRepo,
		Profiles:  accountRepo,
		Publisher: publisher,
		Books:     bookInvalidator,
		Metrics:   instruments,
		Logger:    logger,
	}), logger)
	accountsHandler := accounts.NewHandler(accounts.NewService(accountRepo, orderRepo, issuer, logger), logger)

	mux := http.NewServeMux()
	router := httpapi.NewRouter(mux)
	catalogHandler.Routes(router, issuer.RequireStaff)
	accountsHandler.Routes(router, issuer.RequireUser)
	cartHandler.Routes(router, issuer.RequireUser)
	ordersHandler.Routes(router, issuer.RequireUser, issuer.RequireStaff)

	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			httpapi.WriteError(w, logger, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		httpapi.WriteJSON(w, logger, http.StatusOK, map[string]string{"status": "ok"})
	})

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/metrics" && r.URL.Path != "/healthz"
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting bookstore service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
