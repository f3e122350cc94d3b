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

	"github.com/wafflecomposite/peakstranding-server/internal/api"
	"github.com/wafflecomposite/peakstranding-server/internal/auth"
	"github.com/wafflecomposite/peakstranding-server/internal/config"
	"github.com/wafflecomposite/peakstranding-server/internal/database"
	"github.com/wafflecomposite/peakstranding-server/internal/storage"
	"github.com/wafflecomposite/peakstranding-server/internal/storage/memory"
	"github.com/wafflecomposite/peakstranding-server/internal/storage/postgres"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Convenience for local dev: load .env if present (does not override existing env vars).
	if os.Getenv("ENV") != "production" {
		_ = config.LoadDotEnvIfPresent(".env")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("storage error", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	var authority auth.TicketAuthority
	if cfg.SkipTicketValidation {
		// Config refuses this in production; it reads the ticket as a literal
		// Steam id so local clients can fake identities.
		slog.Warn("steam ticket validation is DISABLED")
		authority = auth.InsecureAuthority{}
	} else {
		authority = auth.NewSteamAuthority(cfg.SteamAPIKey, cfg.SteamAppID, 5*time.Second)
	}
	verifier := auth.NewVerifier(authority, cfg.TicketCacheTTL)

	srv := api.NewServer(cfg, store, verifier)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("listening", "addr", cfg.ListenAddr, "env", cfg.Env)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
}

// openStore connects to Postgres and runs migrations. Outside production a
// missing or unreachable database falls back to the in-memory store, so the
// server can run against the game client without any local Postgres.
func openStore(ctx context.Context, cfg config.Config) (storage.StructuresStore, func(), error) {
	dbURL, err := cfg.PostgresURL()
	if err == nil {
		var conn *database.Connection
		conn, err = database.OpenPostgres(ctx, dbURL, database.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
		})
		if err == nil {
			migrator := database.NewMigrator(conn)
			applied, merr := migrator.Migrate(ctx)
			if merr != nil {
				conn.Close()
				return nil, nil, fmt.Errorf("migrate: %w", merr)
			}
			if len(applied) > 0 {
				slog.Info("migrations applied", "count", len(applied))
			}
			return postgres.New(conn.DB()), func() { conn.Close() }, nil
		}
	}

	if cfg.Env == "production" {
		return nil, nil, err
	}

	slog.Warn("postgres unavailable, using in-memory store (data will not survive restart)", "err", err)
	return memory.New(), func() {}, nil
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
