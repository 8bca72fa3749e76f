package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/commentd/commentd/api"
	"github.com/commentd/commentd/api/validator"
	"github.com/commentd/commentd/auth"
	"github.com/commentd/commentd/comments"
	"github.com/commentd/commentd/config"
	"github.com/commentd/commentd/engagement"
	"github.com/commentd/commentd/moderation"
	"github.com/commentd/commentd/postgres"
	"github.com/commentd/commentd/redis"
	"github.com/commentd/commentd/spam"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("Connected to database")

	cache, err := redis.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("Connected to redis")

	a := &api.API{
		Logger: logger,
		Comments: &comments.Service{
			Logger: logger,
			Store:  pg,
			Cache:  cache,
			Filter: moderation.New(cfg.BannedTerms...),
			Guard: &spam.Guard{
				Counter:   pg,
				Window:    cfg.SpamWindow,
				Threshold: cfg.SpamThreshold,
			},
		},
		Engagement: &engagement.Ledger{
			Logger: logger,
			Store:  pg,
			Cache:  cache,
		},
		Auth: &auth.Service{
			Store:    pg,
			TokenTTL: cfg.TokenTTL,
		},
		Posts: pg,
		Val:   validator.New(),
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: a,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server exited with error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", cfg.Addr)

	sig := <-sigCh
	logger.Info("Received signal, shutting down", "signal", sig.String())
	cancel()

	if err := srv.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
