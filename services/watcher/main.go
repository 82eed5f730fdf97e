package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/aerodelay/flight-dashboard/internal/archive"
	"github.com/aerodelay/flight-dashboard/internal/aviationstack"
	"github.com/aerodelay/flight-dashboard/internal/config"
	"github.com/aerodelay/flight-dashboard/internal/table"
	"github.com/aerodelay/flight-dashboard/pkg/logger"
)

type fetcher interface {
	FetchFlights(ctx context.Context) (*table.Table, error)
}

type snapshotStore interface {
	EnsureSchema(ctx context.Context) error
	SaveSnapshot(ctx context.Context, rows []archive.SnapshotRow) error
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("watcher failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.DryRun && cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required unless DRY_RUN is set")
	}

	lg, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}
	defer func() { _ = lg.Sync() }()
	lg = lg.Named("watcher")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout+10*time.Second)
	defer cancel()

	client := aviationstack.NewClient(aviationstack.Options{
		BaseURL:   cfg.LiveURL,
		AccessKey: cfg.LiveAccessKey,
		Limit:     cfg.LiveLimit,
		Timeout:   cfg.RequestTimeout,
	}, lg)

	var store snapshotStore
	if !cfg.DryRun {
		s, err := archive.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	_, err = archiveOnce(ctx, client, store, time.Now().UTC().Truncate(time.Second), lg)
	return err
}

// archiveOnce fetches the live table and stores it under retrievedAt. A nil
// store logs what would be written instead.
func archiveOnce(ctx context.Context, f fetcher, store snapshotStore, retrievedAt time.Time, lg *logger.Logger) (int, error) {
	live, err := f.FetchFlights(ctx)
	if err != nil {
		return 0, err
	}
	rows := archive.BuildRows(live, retrievedAt)
	lg.Info("fetched live flights", logger.Int("flights", len(rows)), logger.Time("retrieved_at", retrievedAt))

	if len(rows) == 0 {
		lg.Info("no flights to archive")
		return 0, nil
	}

	if store == nil {
		for _, r := range rows {
			lg.Info("dry-run: would archive flight",
				logger.Int("position", r.Position),
				logger.String("flight", deref(r.FlightNumber)),
				logger.String("status", deref(r.Status)))
		}
		return 0, nil
	}

	if err := store.EnsureSchema(ctx); err != nil {
		return 0, err
	}
	if err := store.SaveSnapshot(ctx, rows); err != nil {
		return 0, err
	}
	lg.Info("archived live flights", logger.Int("rows", len(rows)))
	return len(rows), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
