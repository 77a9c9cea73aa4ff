package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/astroveda/consult/internal/config"
	"github.com/astroveda/consult/internal/database"
	"github.com/astroveda/consult/internal/handlers"
	"github.com/astroveda/consult/internal/redis"
	"github.com/astroveda/consult/internal/repositories"
	"github.com/astroveda/consult/internal/routes"
	"github.com/astroveda/consult/internal/services"
	ws "github.com/astroveda/consult/internal/websocket"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
	}
	cancel()
	log.Info().Msg("database connected")

	var bus ws.Bus
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()

		redisBus := ws.NewRedisBus(redisClient)
		defer redisBus.Close()
		bus = redisBus
		log.Info().Msg("redis connected, signaling fan-out enabled")
	}

	hub := ws.NewHub(bus)
	defer hub.Close()

	sessionRepo := repositories.NewSessionRepository(db.DB)
	astrologerRepo := repositories.NewAstrologerRepository(db.DB)
	userRepo := repositories.NewUserRepository(db.DB)
	transactionRepo := repositories.NewTransactionRepository(db.DB)

	sessionService := services.NewSessionService(db, sessionRepo, astrologerRepo, userRepo, transactionRepo)
	walletService := services.NewWalletService(db, userRepo, transactionRepo)
	astrologerService := services.NewAstrologerService(astrologerRepo)

	router := routes.NewRouter(cfg.CORSOrigins)
	routes.RegisterPublicEndpoints(
		router,
		handlers.NewHealthHandler(db),
		handlers.NewAstrologerHandler(astrologerService),
		handlers.NewWebSocketHandler(hub, cfg.CORSOrigins),
		sessionService,
		cfg.JWTSecret,
	)
	routes.RegisterProtectedEndpoints(
		router,
		handlers.NewSessionHandler(sessionService),
		handlers.NewWalletHandler(walletService),
		cfg.JWTSecret,
	)

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
