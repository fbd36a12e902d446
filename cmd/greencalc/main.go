package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/irradiance"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/loadprofile"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/log"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/metrics"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/server"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/storage"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	// init packages
	m := metrics.New()
	s := storage.Configured()
	irr := irradiance.Configured(m)
	lp := loadprofile.Configured(s, irr, m)

	// init server
	srv := server.Configured(s, lp, m)

	// parse flags
	lflag.Configure()

	// lflag automatically sets llog's level, but we need to set the slog level
	level, err := log.LevelFromLLog(llog.GetLevel())
	if err != nil {
		panic(err)
	}
	log.SetDefaultLogLevel(level)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := irr.Validate(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid irradiance configuration", "error", err)
		os.Exit(1)
	}

	// storage init failures panic inside lflag.Do
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
