// Command arenaserver runs the multiplayer snake arena.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brensch/snekarena/arena"
	"github.com/brensch/snekarena/config"
	"github.com/brensch/snekarena/game"
	"github.com/brensch/snekarena/logging"
	"github.com/brensch/snekarena/server"
	"github.com/brensch/snekarena/telemetry"
)

func main() {
	cfg, err := config.Load(os.Args[0], os.Args[1:], ".env")
	if err != nil {
		config.Exitf("arenaserver: %v", err)
	}
	if err := run(cfg); err != nil {
		config.Exitf("arenaserver: %v", err)
	}
}

func run(cfg config.Config) error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log, err := logging.New(os.Stderr, cfg.LogFormat, level)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "snekarena", cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("otel shutdown", "err", err)
		}
	}()

	hub := server.NewHub(log.With("component", "hub"))
	a := arena.New(hub, arena.Config{
		TickInterval: cfg.TickInterval,
		Dimensions:   game.Dimensions{Width: cfg.Width, Height: cfg.Height, GridSize: cfg.GridSize},
	}, arena.WithLogger(log.With("component", "arena")))
	srv := server.New(a, hub, log.With("component", "http"), server.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		MaxMessageSize: cfg.MaxMessageSize,
	})

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Run(gctx)
	})
	g.Go(func() error {
		log.Info("arena listening", "addr", cfg.Listen, "tick", cfg.TickInterval,
			"board", []int{cfg.Width, cfg.Height, cfg.GridSize})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		err := httpServer.Shutdown(sctx)
		// Upgraded connections are not tracked by http.Server.
		hub.CloseAll()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("arenaserver stopped")
	return nil
}
