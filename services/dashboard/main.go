package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/aerodelay/flight-dashboard/internal/archive"
	"github.com/aerodelay/flight-dashboard/internal/aviationstack"
	"github.com/aerodelay/flight-dashboard/internal/config"
	"github.com/aerodelay/flight-dashboard/internal/delays"
	"github.com/aerodelay/flight-dashboard/internal/memo"
	"github.com/aerodelay/flight-dashboard/internal/table"
	"github.com/aerodelay/flight-dashboard/pkg/logger"
	httpserver "github.com/aerodelay/flight-dashboard/services/dashboard/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	lg, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	weatherLog := lg.Named("weather")
	weather := memo.New(func(context.Context) (*table.Table, error) {
		t, err := delays.LoadFile(cfg.WeatherCSVPath)
		if err != nil {
			weatherLog.Error("load weather delays failed", logger.String("path", cfg.WeatherCSVPath), logger.Error(err))
			return nil, err
		}
		weatherLog.Info("weather delays loaded", logger.String("path", cfg.WeatherCSVPath), logger.Int("rows", t.Len()))
		return t, nil
	})

	if cfg.LiveAccessKey == "" {
		lg.Warn("AVIATIONSTACK_ACCESS_KEY not set; live flight tracking is unavailable")
	}
	client := aviationstack.NewClient(aviationstack.Options{
		BaseURL:   cfg.LiveURL,
		AccessKey: cfg.LiveAccessKey,
		Limit:     cfg.LiveLimit,
		Timeout:   cfg.RequestTimeout,
	}, lg)
	live := memo.New(client.FetchFlights)

	deps := httpserver.Deps{Weather: weather, Live: live}
	if cfg.DatabaseURL != "" {
		store, err := archive.New(ctx, cfg.DatabaseURL)
		if err != nil {
			lg.Fatal("db connection error", logger.Error(err))
		}
		defer store.Close()
		deps.Archive = store
	}

	srv := httpserver.New(cfg, deps, lg)
	lg.Info("dashboard listening", logger.String("addr", cfg.ListenAddr()))

	if err := srv.Run(ctx); err != nil {
		lg.Fatal("server error", logger.Error(err))
	}
}
