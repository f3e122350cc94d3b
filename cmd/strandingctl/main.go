package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/wafflecomposite/peakstranding-server/internal/config"
	"github.com/wafflecomposite/peakstranding-server/internal/database"
	"github.com/wafflecomposite/peakstranding-server/internal/storage/postgres"
)

func main() {
	if os.Getenv("ENV") != "production" {
		_ = config.LoadDotEnvIfPresent(".env")
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	dbURL, err := cfg.PostgresURL()
	if err != nil {
		fmt.Fprintf(os.Stderr, "db url error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// One-shot commands need a tiny pool.
	conn, err := database.OpenPostgres(ctx, dbURL, database.PoolConfig{
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "db connection error: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	switch os.Args[1] {
	case "migrate":
		migrate(ctx, conn)
	case "stats":
		stats(ctx, conn)
	default:
		usage()
		os.Exit(2)
	}
}

func migrate(ctx context.Context, conn *database.Connection) {
	migrator := database.NewMigrator(conn)
	applied, err := migrator.Migrate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migration error: %v\n", err)
		os.Exit(1)
	}
	if len(applied) == 0 {
		fmt.Println("up to date")
		return
	}
	for _, name := range applied {
		fmt.Println("applied", name)
	}
}

func stats(ctx context.Context, conn *database.Connection) {
	store := postgres.New(conn.DB())
	counts, err := store.SceneCounts(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
		os.Exit(1)
	}

	scenes := make([]string, 0, len(counts))
	var total int64
	for scene, n := range counts {
		scenes = append(scenes, scene)
		total += n
	}
	sort.Strings(scenes)

	for _, scene := range scenes {
		fmt.Printf("%-40s %d\n", scene, counts[scene])
	}
	fmt.Printf("%-40s %d\n", "total", total)
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  strandingctl migrate")
	fmt.Fprintln(os.Stderr, "  strandingctl stats")
}
