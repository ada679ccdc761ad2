package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arenaworks/wager-arena/brackets"
	"github.com/arenaworks/wager-arena/config"
	"github.com/arenaworks/wager-arena/db"
	"github.com/arenaworks/wager-arena/handlers"
	"github.com/arenaworks/wager-arena/matchmaking"
	"github.com/arenaworks/wager-arena/middleware"
	"github.com/arenaworks/wager-arena/realtime"
	"github.com/arenaworks/wager-arena/repositories"
	"github.com/arenaworks/wager-arena/routes"
	"github.com/arenaworks/wager-arena/services"
	"github.com/arenaworks/wager-arena/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, leaderboard disabled", slog.Any("error", err))
			redisClient = nil
		} else {
			defer redisClient.Close()
			logger.Info("redis connection established")
		}
	}

	var uploader storage.FileUploader
	if cfg.R2.Enabled() {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			SecretAccessKey: cfg.R2.SecretAccessKey,
			BucketName:      cfg.R2.BucketName,
			PublicBaseURL:   cfg.R2.PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("evidence storage initialized")
	} else {
		logger.Warn("evidence storage not configured, uploads disabled")
	}

	hub := realtime.NewHub(logger)
	go hub.Run()

	accountRepo := repositories.NewPostgresAccountRepository(dbConn)
	challengeRepo := repositories.NewPostgresChallengeRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	txRunner := repositories.NewSQLTxRunner(dbConn)

	ledger := services.NewLedger(accountRepo)
	var leaderboard *services.LeaderboardService
	if redisClient != nil {
		leaderboard = services.NewLeaderboardService(redisClient, accountRepo, logger)
	}

	authService := services.NewAuthService(accountRepo)
	accountService := services.NewAccountService(accountRepo)
	challengeService := services.NewChallengeService(
		txRunner, challengeRepo, accountRepo, ledger, hub, leaderboard, logger)
	tournamentService := services.NewTournamentService(
		txRunner, tournamentRepo, matchRepo, ledger,
		brackets.NewSingleEliminationGenerator(), hub, leaderboard, logger)

	queue := matchmaking.NewQueue()
	matchmakingService := services.NewMatchmakingService(
		queue, txRunner, challengeRepo, accountRepo, ledger, hub, logger)

	// A queued user who drops their socket is removed from the queue.
	hub.OnDisconnect = func(userID int) {
		if matchmakingService.Leave(context.Background(), userID) {
			logger.Info("removed disconnected user from queue", slog.Int("user_id", userID))
		}
	}

	// Background sweep for open challenges past their TTL. Expiry is
	// also applied lazily on access; the sweep just bounds how long a
	// stale listing can linger.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(cfg.ExpirySweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				expired, err := challengeService.ExpireOpenChallenges(sweepCtx)
				if err != nil {
					logger.Error("challenge expiry sweep failed", slog.Any("error", err))
					continue
				}
				if expired > 0 {
					logger.Info("expired open challenges", slog.Int("count", expired))
				}
			}
		}
	}()

	auth := middleware.NewAuth(cfg.JWTSecretKey, cfg.TokenTTL)
	router := routes.InitRoutes(auth, routes.Handlers{
		Auth:        handlers.NewAuthHandler(authService, auth),
		Account:     handlers.NewAccountHandler(accountService, leaderboard),
		Challenge:   handlers.NewChallengeHandler(challengeService, uploader),
		Matchmaking: handlers.NewMatchmakingHandler(matchmakingService),
		Tournament:  handlers.NewTournamentHandler(tournamentService),
		Admin:       handlers.NewAdminHandler(challengeService, tournamentService, accountService),
		WebSocket:   handlers.NewWebSocketHandler(hub, logger),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}

		// Waiting tickets vanish with the process; no stake was held for
		// them, so there is nothing to refund.
		if abandoned := queue.Drain(); len(abandoned) > 0 {
			logger.Info("drained matchmaking queue", slog.Int("tickets", len(abandoned)))
		}
	}
	logger.Info("application exited")
}
