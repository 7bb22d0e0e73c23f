package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workbench/internal/config"
	"github.com/noah-isme/gema-workbench/internal/database"
	"github.com/noah-isme/gema-workbench/internal/dto"
	"github.com/noah-isme/gema-workbench/internal/handler"
	"github.com/noah-isme/gema-workbench/internal/middleware"
	"github.com/noah-isme/gema-workbench/internal/observability"
	"github.com/noah-isme/gema-workbench/internal/router"
	"github.com/noah-isme/gema-workbench/internal/service"
	"github.com/noah-isme/gema-workbench/pkg/classroom"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observability.RegisterMetrics()

	var (
		sessionStore service.SessionStore = service.NewMemorySessionStore()
		probes                            = map[string]handler.HealthProbe{}
	)
	if cfg.RedisURL != "" {
		redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()

		sessionStore = service.NewRedisSessionStore(redisClient, cfg.SessionKey)
		probes["redis"] = redisProbe(redisClient)
	} else {
		logger.Warn().Msg("redis url not set; sessions will not survive a restart")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Close()

		probes["nats"] = natsProbe(natsConn)
	}

	sessions := service.NewSessionManager(sessionStore, time.Now, logger)

	gateway, err := classroom.New(classroom.Config{
		BaseURL:       cfg.ClassroomBaseURL,
		Timeout:       cfg.ClassroomTimeout,
		Tokens:        sessions,
		CorrelationID: middleware.CorrelationIDFromContext,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create classroom client")
	}

	hub := service.NewEventHub(natsConn, cfg.NATSSubject, logger)
	hub.Start(ctx)

	validate := dto.NewValidator()
	workbench := service.NewWorkbench(gateway, hub, validate, service.WorkspaceConfig{
		SolutionFileName:  cfg.SolutionFileName,
		DefaultLanguage:   cfg.DefaultLanguage,
		SaveFeedbackDelay: cfg.SaveFeedbackDelay,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.AllowOrigins,
		AccessLog:    cfg.AccessLog,
	})
	router.Register(app, cfg, router.Dependencies{
		SessionHandler:   handler.NewSessionHandler(sessions, workbench, validate, logger),
		WorkspaceHandler: handler.NewWorkspaceHandler(workbench, validate, logger),
		TestCaseHandler:  handler.NewTestCaseHandler(workbench, validate, logger),
		EventHandler:     handler.NewEventHandler(hub, logger),
		Sessions:         sessions,
		HealthProbes:     probes,
	})

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress()).Msg("workbench listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(ctx, app, logger)
}

func redisProbe(client *redis.Client) handler.HealthProbe {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

func natsProbe(conn *nats.Conn) handler.HealthProbe {
	return func(context.Context) error {
		if !conn.IsConnected() {
			return errors.New(conn.Status().String())
		}
		return nil
	}
}

func waitForShutdown(ctx context.Context, app *fiber.App, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
