package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"parley/internal/core/ports"
	"parley/internal/core/services"
	httphandlers "parley/internal/handlers/http"
	"parley/internal/infrastructure/middleware"
	"parley/internal/infrastructure/monitoring"
	"parley/internal/infrastructure/repositories/memory"
	wssignal "parley/internal/infrastructure/signal"
	"parley/internal/infrastructure/speech"
	"parley/pkg/circuitbreaker"
	"parley/pkg/config"
	"parley/pkg/logger"
	"parley/pkg/retry"
	"parley/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/parley/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	// Tracing
	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tp.Shutdown(ctx)
	}()

	metrics := monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)

	// Core state and services
	identities := memory.NewIdentityRegistry()
	rooms := memory.NewRoomTable()
	table := wssignal.NewConnTable(cfg.Signal.WriteTimeout)
	relay := services.NewRelay(rooms, table, metrics, log)
	scheduler := services.NewEvictionScheduler(log)
	defer scheduler.Stop()

	coordinator := services.NewCoordinator(
		identities, rooms, relay, scheduler,
		cfg.Rooms.EvictionDelay, metrics, log,
	)

	// Speech side channel. Missing or bad credentials disable it;
	// signaling stays fully functional.
	var speechService ports.SpeechService
	provider, err := speech.NewGoogleProvider(context.Background(), speech.Config{
		CredentialsFile: cfg.Speech.CredentialsFile,
		DefaultLanguage: cfg.Speech.DefaultLanguage,
		RequestTimeout:  cfg.Speech.RequestTimeout,
		Retry: retry.Config{
			MaxAttempts:  cfg.Speech.Retry.MaxAttempts,
			InitialDelay: cfg.Speech.Retry.InitialDelay,
			MaxDelay:     cfg.Speech.Retry.MaxDelay,
			Multiplier:   2,
			Jitter:       true,
		},
		Breaker: circuitbreaker.Config{
			FailureThreshold: cfg.Speech.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Speech.Breaker.SuccessThreshold,
			CoolDown:         cfg.Speech.Breaker.CoolDown,
		},
	}, metrics, log)
	if err != nil {
		log.Warnw("speech services disabled", "error", err)
	} else {
		speechService = provider
		defer provider.Close()
	}

	wsServer := wssignal.NewWebSocketServer(table, coordinator, relay, speechService, wssignal.Options{
		PingInterval:      cfg.Signal.PingInterval,
		PongTimeout:       cfg.Signal.PongTimeout,
		MaxMessageSize:    cfg.Signal.MaxMessageSizeBytes,
		MessagesPerSecond: websocketRate(cfg),
		MessageBurst:      cfg.RateLimiting.WebSocket.Burst,
	}, metrics, log)

	// HTTP surface
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	httphandlers.NewRoomHandler(coordinator, table).SetupRoutes(router)
	router.GET("/ws", func(c *gin.Context) {
		wsServer.HandleWebSocket(c.Writer, c.Request)
	})
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infow("starting signaling server", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("graceful shutdown failed", "error", err)
	}
}

func websocketRate(cfg *config.Config) float64 {
	if !cfg.RateLimiting.Enabled {
		return 0
	}
	return cfg.RateLimiting.WebSocket.MessagesPerSecond
}
