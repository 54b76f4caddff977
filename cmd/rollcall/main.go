package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"google.golang.org/api/option"

	"github.com/dukerupert/rollcall/internal/archive"
	"github.com/dukerupert/rollcall/internal/config"
	"github.com/dukerupert/rollcall/internal/database"
	"github.com/dukerupert/rollcall/internal/discord"
	"github.com/dukerupert/rollcall/internal/engine"
	"github.com/dukerupert/rollcall/internal/logging"
	"github.com/dukerupert/rollcall/internal/scheduler"
	"github.com/dukerupert/rollcall/internal/server"
	"github.com/dukerupert/rollcall/internal/sheets"
	"github.com/dukerupert/rollcall/internal/store"
	ws "github.com/dukerupert/rollcall/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		slog.Error("rollcall stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logging.Setup("info", "text", os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	votes, err := openVoteStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	logger.Info("vote store ready", "backend", cfg.VoteStore)

	bot, err := discord.New(cfg.DiscordToken, cfg.GuildID, logger.With("component", "discord"))
	if err != nil {
		return err
	}

	hub := ws.NewHub(logger.With("component", "websocket"))

	deps := engine.Deps{
		Votes:              votes,
		Roster:             bot,
		Notifier:           bot,
		Events:             hub,
		Location:           cfg.Location,
		PollChannelID:      cfg.PollChannelID,
		LeaderboardChannel: cfg.LeaderboardChannelID,
		Logger:             logger.With("component", "engine"),
	}
	srvOpts := server.Options{
		OperatorHash:   cfg.OperatorTokenHash,
		OriginPatterns: cfg.WSOrigins,
	}
	if a := archive.New(cfg.Archive, logger.With("component", "archive")); a != nil {
		deps.Archiver = a
		srvOpts.Snapshots = a
		logger.Info("leaderboard archive enabled", "bucket", cfg.Archive.Bucket, "encrypted", cfg.Archive.Passphrase != "")
	}
	eng, err := engine.New(deps)
	if err != nil {
		return err
	}

	sched := scheduler.New(cfg.Location, logger.With("component", "scheduler"),
		scheduler.WithLedger(store.NewOccurrenceStore(db)),
		scheduler.WithInterval(cfg.TickInterval),
	)
	if err := eng.Register(sched, cfg.Poll, cfg.Leaderboard); err != nil {
		return fmt.Errorf("register schedule: %w", err)
	}

	bot.Handle(eng)
	if err := bot.Open(); err != nil {
		return err
	}
	defer bot.Close()

	sched.Start(ctx)
	defer sched.Stop()

	srv := server.New(eng, hub, srvOpts, logger)
	go srv.RateLimiter().Run(ctx, 10*time.Minute)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rollcall running",
			"addr", cfg.Addr(),
			"zone", cfg.Location.String(),
			"operator_api", cfg.OperatorTokenHash != "",
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openVoteStore(ctx context.Context, cfg *config.Config, db *sql.DB) (engine.VoteStore, error) {
	if cfg.VoteStore == config.StoreSheets {
		s, err := sheets.New(ctx, cfg.Sheets.SpreadsheetID, cfg.Sheets.Range,
			option.WithCredentialsFile(cfg.Sheets.CredentialsFile))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return store.NewVoteStore(db), nil
}
