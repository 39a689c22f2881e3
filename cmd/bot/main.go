// Package main is the entry point for the Coin Dash score bot.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"coindash-bot/internal/api"
	"coindash-bot/internal/bot"
	"coindash-bot/internal/config"
	"coindash-bot/internal/handler"
	"coindash-bot/internal/kafka"
	"coindash-bot/internal/model"
	"coindash-bot/internal/oracle"
	"coindash-bot/internal/pkg/db"
	"coindash-bot/internal/pkg/lock"
	"coindash-bot/internal/repository"
	"coindash-bot/internal/service"
	"coindash-bot/internal/store"
	"coindash-bot/internal/ws"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Select the score store backend
	scoreStore, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("Failed to initialize score store")
	}
	if cleanup != nil {
		defer cleanup()
	}
	log.Info().Str("backend", cfg.Storage.Backend).Msg("Score store ready")

	// Core services
	keyLock := lock.NewKeyLock()
	reconciler := service.NewReconciler(scoreStore, keyLock, cfg.Ranking.AllowEqual)
	rankingService := service.NewRankingService(scoreStore)

	// Websocket hub for live leaderboard subscribers
	hub := ws.NewHub()
	go hub.Run()
	defer hub.Stop()

	reconciler.OnAccept(func(rec *model.PlayerRecord, _ *model.ScoreReport, _ model.Outcome) {
		hub.BroadcastAcceptance(rec.ContextID, rec)
		entries, err := rankingService.TopN(context.Background(), rec.ContextID, cfg.Ranking.TopLimit)
		if err != nil {
			log.Error().Err(err).Str("context_id", rec.ContextID).Msg("Failed to build leaderboard broadcast")
			return
		}
		hub.BroadcastLeaderboard(rec.ContextID, entries)
	})

	// Telegram bot
	refs := handler.NewRefRegistry()
	telegramBot, err := bot.New(&bot.Dependencies{
		Config:     cfg,
		Reconciler: reconciler,
		Ranking:    rankingService,
		Refs:       refs,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Best-effort sync of accepted bests back to Telegram's scoreboard
	var forwarder *oracle.Forwarder
	if cfg.Oracle.Enabled {
		forwarder = oracle.NewForwarder(telegramBot.Scoreboard(), cfg.Oracle.QueueSize)
		forwarder.Start()
		defer forwarder.Stop()

		reconciler.OnAccept(func(rec *model.PlayerRecord, report *model.ScoreReport, _ model.Outcome) {
			ref, ok := refs.Lookup(rec.ContextID, rec.PlayerID)
			if !ok {
				return
			}
			forwarder.Enqueue(oracle.Job{
				Ref:      ref,
				PlayerID: rec.PlayerID,
				Score:    rec.BestScore,
				Force:    report.Force,
			})
		})
		log.Info().Msg("Platform score forwarding enabled")
	}

	// HTTP API
	var httpServer *http.Server
	if cfg.HTTP.Enabled {
		apiServer := api.NewServer(reconciler, rankingService, hub, cfg)
		httpServer = &http.Server{
			Addr:    cfg.HTTP.Addr,
			Handler: apiServer.Handler(),
		}
		go func() {
			log.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP API listening")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("HTTP server failed")
			}
		}()
	}

	// Kafka score stream
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer, err = kafka.NewConsumer(&cfg.Kafka, reconciler)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create score stream consumer")
		}
		if err := consumer.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start score stream consumer")
		}
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	telegramBot.Stop()
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			log.Error().Err(err).Msg("Score stream consumer shutdown error")
		}
	}
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}
	log.Info().Msg("Stopped gracefully")
}

// buildStore constructs the configured score store. The returned cleanup
// releases its connections, nil when there is nothing to release.
func buildStore(ctx context.Context, cfg *config.Config) (store.ScoreStore, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return store.NewMemoryStore(), nil, nil

	case config.BackendFile:
		fs, err := store.NewFileStore(cfg.Storage.FilePath)
		if err != nil {
			return nil, nil, err
		}
		return fs, nil, nil

	case config.BackendRedis:
		rs, err := store.NewRedisStore(ctx, &cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { _ = rs.Close() }, nil

	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := runMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repository.NewScoreRepository(pool.Pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS player_scores (
			context_id TEXT NOT NULL,
			player_id BIGINT NOT NULL,
			display_name VARCHAR(255) NOT NULL,
			best_score BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (context_id, player_id)
		);
		CREATE INDEX IF NOT EXISTS idx_player_scores_board
			ON player_scores(context_id, best_score DESC, updated_at ASC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: player_scores table created")

	return nil
}
