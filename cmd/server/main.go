package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/ports"
	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/services"
	httphandlers "github.com/ulearning-intl/bigbluebutton-streaming/internal/handlers/http"
	"github.com/ulearning-intl/bigbluebutton-streaming/internal/infrastructure/bbb"
	"github.com/ulearning-intl/bigbluebutton-streaming/internal/infrastructure/docker"
	"github.com/ulearning-intl/bigbluebutton-streaming/internal/infrastructure/events"
	"github.com/ulearning-intl/bigbluebutton-streaming/internal/infrastructure/middleware"
	"github.com/ulearning-intl/bigbluebutton-streaming/internal/infrastructure/monitoring"
	infraredis "github.com/ulearning-intl/bigbluebutton-streaming/internal/infrastructure/redis"
	"github.com/ulearning-intl/bigbluebutton-streaming/internal/infrastructure/reliability"
	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/circuitbreaker"
	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/config"
	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/logger"
	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/retry"
	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := pflag.StringP("config", "c", "configs/config.yaml", "path to the YAML configuration file")
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before environment overrides")
	logLevel := pflag.String("log-level", "", "override logging.level")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	if err := run(cfg, zapLogger); err != nil {
		zapLogger.Sugar().Errorw("server exited with error", "error", err)
		_ = zapLogger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, zapLogger *zap.Logger) error {
	log := zapLogger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnw("failed to flush traces", "error", err)
		}
	}()

	// Runtime substrate
	dockerHost := ""
	if os.Getenv("DOCKER_HOST") == "" {
		dockerHost = "unix://" + cfg.Worker.ControlSocket
	}
	workerRuntime, err := docker.NewRuntime(dockerHost, log.Named("docker"))
	if err != nil {
		return err
	}
	defer workerRuntime.Close()

	// Meeting directory
	directoryClient := bbb.NewClient(cfg.Directory.BaseURL, cfg.Directory.Secret, cfg.Directory.Timeout, log.Named("bbb"))
	var breakerConfig *circuitbreaker.Config
	if cfg.Directory.CircuitBreaker.Enabled {
		breakerConfig = &circuitbreaker.Config{
			FailureThreshold:    cfg.Directory.CircuitBreaker.FailureThreshold,
			SuccessThreshold:    cfg.Directory.CircuitBreaker.SuccessThreshold,
			Timeout:             cfg.Directory.CircuitBreaker.Timeout,
			MaxRequestsHalfOpen: 1,
		}
	}
	directory := reliability.NewDirectoryWrapper(directoryClient, cfg.Directory.Timeout, retry.Config{
		Enabled:      cfg.Directory.Retry.Enabled,
		MaxAttempts:  cfg.Directory.Retry.MaxAttempts,
		InitialDelay: cfg.Directory.Retry.InitialDelay,
		MaxDelay:     cfg.Directory.Retry.MaxDelay,
		Multiplier:   2.0,
		Jitter:       true,
	}, breakerConfig, log.Named("directory"))

	// Admission
	admission, redisClient := infraredis.NewAdmissionGuard(ctx, cfg, log.Named("admission"))
	defer infraredis.CloseRedisClient(redisClient)

	// Metrics
	stats := services.NewMetricsService()
	metrics := services.MultiMetrics{stats}
	var collector *monitoring.PrometheusCollector
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewPrometheusCollector(nil)
		metrics = append(metrics, collector)
	}

	opts := []services.Option{
		services.WithAdmissionGuard(admission),
		services.WithMetrics(metrics),
		services.WithLogger(log.Named("controller")),
	}

	var (
		hub *events.Hub
		bus *events.RedisBus
	)
	if cfg.Events.Enabled {
		hub = events.NewHub(events.Config{
			PingInterval:   cfg.Events.PingInterval,
			WriteTimeout:   cfg.Events.WriteTimeout,
			BufferSize:     cfg.Events.BufferSize,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
		}, log.Named("events"))
		if collector != nil {
			hub.OnSubscriberCount(collector.SetEventSubscribers)
		}
		if redisClient != nil {
			bus = events.NewRedisBus(redisClient, cfg.Events.RedisChannel, hub, log.Named("events"))
			opts = append(opts, services.WithEventPublisher(bus))
		} else {
			opts = append(opts, services.WithEventPublisher(hub))
		}
	}

	controller := services.NewStreamController(services.StreamConfig{
		Image:                cfg.Worker.Image,
		NamePrefix:           cfg.Worker.NamePrefix,
		ControlSocket:        cfg.Worker.ControlSocket,
		MaxConcurrentStreams: cfg.Worker.MaxConcurrentStreams,
		RuntimeTimeout:       cfg.Worker.RuntimeTimeout,
		DirectoryTimeout:     cfg.Directory.LookupBudget,
		RemoveOnStartFailure: cfg.Worker.RemoveOnStartFailure,
	}, directory, workerRuntime, opts...)

	// Health
	checker := monitoring.NewHealthChecker()
	checker.AddRuntimeCheck(controller, 5*time.Second)
	if redisClient != nil {
		checker.AddRedisCheck(redisClient, 2*time.Second)
	}
	if breakerConfig != nil {
		checker.AddBreakerCheck("directory", directory.GetCircuitBreakerStats)
	}

	router, err := newRouter(cfg, zapLogger, collector, controller, stats, checker, hub)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infow("starting stream controller",
			"address", cfg.Server.Address,
			"worker_image", cfg.Worker.Image,
			"max_concurrent_streams", cfg.Worker.MaxConcurrentStreams,
			"admission", cfg.Admission.Backend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down stream controller...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorw("error during server shutdown", "error", err)
			return srv.Close()
		}
		return nil
	})

	if bus != nil {
		g.Go(func() error {
			if err := bus.Run(gctx); err != nil {
				log.Warnw("event relay stopped", "error", err)
			}
			return nil
		})
	}

	if collector != nil && breakerConfig != nil {
		g.Go(func() error {
			watchBreaker(gctx, directory, collector)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("stream controller stopped")
	return nil
}

func newRouter(
	cfg *config.Config,
	zapLogger *zap.Logger,
	collector *monitoring.PrometheusCollector,
	controller ports.StreamController,
	stats httphandlers.StatsProvider,
	checker *monitoring.HealthChecker,
	hub *events.Hub,
) (*gin.Engine, error) {
	log := zapLogger.Sugar()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	var httpMetrics middleware.HTTPMetrics
	if collector != nil {
		httpMetrics = collector
	}

	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.RequestIDMiddleware(),
		middleware.TracingMiddleware(),
		middleware.AccessLogMiddleware(logger.NewContextLogger(zapLogger.Named("http")), httpMetrics),
		middleware.ErrorHandlerMiddleware(log),
		middleware.CORSMiddleware(cfg.CORS.AllowedOrigins),
		middleware.NewHTTPRateLimitMiddleware(cfg),
		middleware.BodyLimitMiddleware(cfg.Server.MaxBodyBytes),
	)

	httphandlers.NewStreamHandler(controller, stats).SetupRoutes(router)
	httphandlers.NewHealthHandler(checker).SetupRoutes(router)

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	if hub != nil {
		router.GET("/ws/events", gin.WrapF(hub.HandleWebSocket))
	}
	if cfg.Server.StaticDir != "" {
		router.NoRoute(gin.WrapH(http.FileServer(http.Dir(cfg.Server.StaticDir))))
	} else {
		router.NoRoute(httphandlers.NotFound)
	}

	return router, nil
}

// watchBreaker mirrors the directory breaker state into the metrics gauge.
func watchBreaker(ctx context.Context, directory *reliability.DirectoryWrapper, collector *monitoring.PrometheusCollector) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s, ok := directory.GetCircuitBreakerStats(); ok {
				collector.SetDirectoryBreakerState(int(s.State))
			}
		}
	}
}
