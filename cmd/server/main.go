package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/digitalservices/queue-service/config"
	_ "github.com/digitalservices/queue-service/docs"
	"github.com/digitalservices/queue-service/internal/applog"
	"github.com/digitalservices/queue-service/internal/auth"
	"github.com/digitalservices/queue-service/internal/database"
	"github.com/digitalservices/queue-service/internal/dispatch"
	"github.com/digitalservices/queue-service/internal/events"
	"github.com/digitalservices/queue-service/internal/handlers"
	httpclient "github.com/digitalservices/queue-service/internal/http"
	"github.com/digitalservices/queue-service/internal/http/ratelimit"
	"github.com/digitalservices/queue-service/internal/middleware"
	"github.com/digitalservices/queue-service/internal/storage"
	"github.com/digitalservices/queue-service/internal/store"
	"github.com/digitalservices/queue-service/internal/sweepers"
	"github.com/digitalservices/queue-service/internal/telemetry"
)

// @title Queue Service API
// @version 1.0
// @description Process queue dispatcher, technology callbacks and next-stage forwarding.
// @BasePath /
func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := applog.New(applog.Options{
		Level:   cfg.Logging.Level,
		JSON:    cfg.Logging.Format == "json",
		NoColor: cfg.Logging.NoColor,
		File:    cfg.Logging.File,
		Service: "queue-service",
	})
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	log.Logger = *logger

	logger.Info().Msg("Starting queue service")

	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.FromConfig(cfg.Telemetry))
	if err != nil {
		logger.Warn().Err(err).Msg("Telemetry disabled")
	}
	defer func() {
		if shutdownTelemetry == nil {
			return
		}
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Error().Err(err).Msg("Failed to flush telemetry")
		}
	}()

	if cfg.Database.URL == "" {
		logger.Fatal().Msg("DATABASE_URL not set")
	}
	if err := database.Connect(ctx, cfg.Database); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(ctx, database.Pool()); err != nil {
		logger.Fatal().Err(err).Msg("Failed to apply schema")
	}
	logger.Info().Msg("Database connected")

	validator, closeAuth := openValidator(ctx, cfg, logger)
	defer closeAuth()

	publisher := openPublisher(cfg.Events, logger)
	defer publisher.Close()

	st := store.NewPostgres(database.Pool())
	files := storage.NewLocalStorage(cfg.Storage.BaseDir)
	client := httpclient.NewClient(ratelimit.Config{
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             1,
	})
	dispatcher := dispatch.New(st, files, client, publisher, logger, dispatch.ConfigFrom(cfg))

	var sweeper *sweepers.DispatchSweeper
	if cfg.Scheduler.Enabled {
		sweeper = sweepers.NewDispatchSweeper(dispatcher, logger, cfg.Scheduler.RunInterval, cfg.Scheduler.NextInterval)
		sweeper.Start(ctx)
	}

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	setupMiddleware(router, logger)
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimitMiddleware(middleware.RateLimiterConfigFrom(cfg.RateLimit)))
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	handlers.Routes{
		Dispatcher: dispatcher,
		Store:      st,
		Files:      files,
		TokenAuth:  middleware.TokenAuthMiddleware(validator),
		IPAddress:  cfg.API.ModelerIPAddress,
		RunLimiter: middleware.RunRateLimitMiddleware(cfg.RateLimit),
	}.Register(router)

	writeTimeout := cfg.EffectiveWriteTimeout()
	if writeTimeout != cfg.Server.WriteTimeout {
		logger.Warn().
			Dur("configured", cfg.Server.WriteTimeout).
			Dur("effective", writeTimeout).
			Msg("Write timeout raised above the download timeout")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(router, "queue-service"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: writeTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if sweeper != nil {
		sweeper.Stop()
	}

	// Fired technology requests outlive their batch; give them the
	// shutdown window to record an answer.
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Technology requests still in flight")
	}

	logger.Info().Msg("Server exited")
}

// openValidator returns the token validator and its closer
func openValidator(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (auth.Validator, func()) {
	if cfg.Auth.Disabled {
		logger.Warn().Msg("Token validation disabled")
		return auth.AllowAll{}, func() {}
	}
	if cfg.Auth.URL == "" {
		logger.Fatal().Msg("AUTH_DATABASE_URL not set")
	}

	tokens, err := auth.Open(ctx, cfg.Auth)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Auth.Driver).Msg("Failed to open token database")
	}
	return tokens, func() { tokens.Close() }
}

func openPublisher(cfg config.EventsConfig, logger *zerolog.Logger) events.Publisher {
	if cfg.URL == "" {
		return events.Nop{}
	}
	publisher, err := events.Dial(cfg.URL, cfg.Exchange)
	if err != nil {
		logger.Warn().Err(err).Msg("Event publishing disabled")
		return events.Nop{}
	}
	logger.Info().Str("exchange", cfg.Exchange).Msg("Publishing queue events")
	return publisher
}

func setupMiddleware(router *gin.Engine, logger *zerolog.Logger) {
	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Str("request_id", c.GetString(middleware.RequestIDKey)).
			Msg("HTTP request")
	})
}
