package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"enigh/internal/config"
	"enigh/internal/logging"
	"enigh/internal/metrics"
	"enigh/internal/report"
	"enigh/internal/tablecache"
	"enigh/ui"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	sessions := tablecache.NewSessionStore(cfg.SessionTTL, cfg.MaxSessions, nil, m)
	go sessions.Run(ctx, cfg.SessionTTL/2)

	reports := report.NewService(report.Settings{
		DataRoot:      cfg.DataRoot(),
		OutputsRoot:   cfg.OutputsRoot(),
		Year:          cfg.Year,
		MaxCategories: cfg.MaxCategories,
		MaxPoints:     cfg.MaxPoints,
	})

	server, err := ui.NewServer(reports, sessions, m)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize dashboard")
	}

	log.Info().
		Str("data_root", cfg.DataRoot()).
		Str("outputs_root", cfg.OutputsRoot()).
		Int("year", cfg.Year).
		Msg("dashboard configured")

	if err := server.Run(ctx, cfg.Addr()); err != nil {
		log.Fatal().Err(err).Msg("dashboard stopped")
	}
}
