package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rpattn/stackshift/internal/config"
	"github.com/rpattn/stackshift/internal/db"
	"github.com/rpattn/stackshift/internal/migration"
	"github.com/rpattn/stackshift/internal/source"
	"github.com/rpattn/stackshift/pkg/logger"
)

func main() {
	configPath := flag.String("config", ".", "directory holding config.yaml")
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	log.SetLevel(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to source database: %v", err)
	}
	defer conn.Close()

	store := source.NewPostgresStore(conn, cfg.QueryTimeout)
	runner := migration.NewRunner(cfg, store, log)

	summary, err := runner.Run(ctx)
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.WithField("entries", summary.Entries).Info("stack written")
}
