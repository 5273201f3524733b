package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ycliao/daigou-storefront/internal/analytics"
	"github.com/ycliao/daigou-storefront/internal/api"
	"github.com/ycliao/daigou-storefront/internal/catalog"
	"github.com/ycliao/daigou-storefront/internal/session"
	"github.com/ycliao/daigou-storefront/internal/telemetry"
	"github.com/ycliao/daigou-storefront/internal/web"
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "storefront-web", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("storefront-web", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		logger.Error("failed to create metrics", "error", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	marketplaceURL := os.Getenv("MARKETPLACE_API_URL")
	if marketplaceURL == "" {
		logger.Error("MARKETPLACE_API_URL is required")
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	apiClient := api.NewClient(marketplaceURL, httpClient)

	var cache *redis.Client
	if addr := os.Getenv("REDIS_ADDRESS"); addr != "" {
		cache = redis.NewClient(&redis.Options{Addr: addr})
		defer func() { _ = cache.Close() }()
		logger.Info("catalog cache enabled", "address", addr)
	}
	catalogSvc := catalog.NewService(apiClient, cache, logger)

	var producer *analytics.Producer
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		topic := os.Getenv("KAFKA_ANALYTICS_TOPIC")
		if topic == "" {
			topic = "storefront.events"
		}
		producer = analytics.NewProducer(strings.Split(brokers, ","), topic)
		defer func() { _ = producer.Close() }()
		logger.Info("analytics producer enabled", "topic", topic)
	}

	sessions := session.NewManager()

	handler, err := web.NewHandler(catalogSvc, sessions, apiClient, producer, metrics, logger)
	if err != nil {
		logger.Error("failed to create handler", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "storefront-web",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting storefront", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
