package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/obrolan/server/adapters"
	"github.com/satriahrh/obrolan/server/adapters/llm"
	"github.com/satriahrh/obrolan/server/adapters/mongo"
	"github.com/satriahrh/obrolan/server/domain/repositories"
	"github.com/satriahrh/obrolan/server/internal/api"
	"github.com/satriahrh/obrolan/server/internal/auth"
	"github.com/satriahrh/obrolan/server/internal/config"
	"github.com/satriahrh/obrolan/server/internal/websocket"
	"github.com/satriahrh/obrolan/server/usecase"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Initialize adapters
	repo, closeStore, err := newConversationRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialise conversation store", zap.Error(err))
	}
	defer closeStore()

	generator := newGenerator(cfg, logger)

	// Initialize usecase services
	chatService := usecase.NewChatService(repo, generator, usecase.ChatConfig{
		RenderStyle:       cfg.RenderStyle(),
		GenerationTimeout: cfg.GenerationTimeout,
		StreamIdleTimeout: cfg.StreamIdleTimeout,
	}, logger)

	var cleanup *usecase.SessionCleanupService
	if cfg.SessionTTL > 0 {
		cleanup = usecase.NewSessionCleanupService(repo, cfg.SessionCleanupInterval, logger)
		cleanup.Start()
	}

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, session tokens will not survive a restart")
	}
	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		logger.Fatal("Failed to initialise token issuer", zap.Error(err))
	}

	// Initialize WebSocket hub
	hubCtx, stopHub := context.WithCancel(ctx)
	hub := websocket.NewHub(chatService, cfg.CORSOrigins, logger)
	go hub.Run(hubCtx)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, api.SessionHeader},
		ExposeHeaders: []string{api.SessionHeader, echo.HeaderXRequestID},
	}))

	// Initialize API routes
	api.InitRoutes(e, chatService, hub, tokens, generator.Name(), logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("backend", generator.Name()),
		zap.String("store", cfg.Store),
		zap.Int("history_max_turns", cfg.HistoryMaxTurns))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopHub()
	if cleanup != nil {
		cleanup.Stop()
	}

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// newConversationRepository selects the store named by STORE
func newConversationRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.ConversationRepository, func(), error) {
	switch cfg.Store {
	case config.StoreMongo:
		client, err := mongo.NewClient(ctx, cfg.MongoDBURI, cfg.MongoDBDatabase, logger)
		if err != nil {
			return nil, nil, err
		}
		repo := mongo.NewConversationRepository(client.Database, cfg.HistoryMaxTurns, cfg.SessionTTL, logger)
		closeFn := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Close(closeCtx); err != nil {
				logger.Error("Failed to close MongoDB client", zap.Error(err))
			}
		}
		return repo, closeFn, nil

	default:
		repo := adapters.NewMemoryConversationRepository(cfg.HistoryMaxTurns, cfg.SessionTTL, logger)
		return repo, func() {}, nil
	}
}

// newGenerator selects the backend named by BACKEND. Remote backends are
// built on first use, so a misconfigured model answers model_unavailable
// instead of stopping the server.
func newGenerator(cfg *config.Config, logger *zap.Logger) repositories.Generator {
	switch cfg.Backend {
	case config.BackendGemini:
		return llm.NewLazyGenerator(config.BackendGemini, func(ctx context.Context) (repositories.Generator, error) {
			generator, err := llm.NewGeminiGenerator(ctx, llm.GeminiConfig{
				APIKey:       cfg.GeminiAPIKey,
				Model:        cfg.ModelName,
				SystemPrompt: cfg.SystemPrompt,
			}, logger)
			if err != nil {
				return nil, err
			}
			return generator, nil
		}, logger)

	case config.BackendOllama:
		return llm.NewLazyGenerator(config.BackendOllama, func(ctx context.Context) (repositories.Generator, error) {
			generator, err := llm.NewOllamaGenerator(llm.OllamaConfig{
				Host:  cfg.OllamaHost,
				Model: cfg.ModelName,
			}, logger)
			if err != nil {
				return nil, err
			}
			return generator, nil
		}, logger)

	default:
		return llm.NewMockGenerator(cfg.MockStreamDelay)
	}
}

// requestLogger writes one zap entry per request
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				logger.Error("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	})
}
