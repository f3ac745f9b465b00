package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/tempest/internal/config"
	"github.com/udisondev/tempest/internal/dispatcher"
	"github.com/udisondev/tempest/internal/game/uno"
	"github.com/udisondev/tempest/internal/protocol"
	"github.com/udisondev/tempest/internal/server"
)

const ConfigPath = "config/tempest.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("TEMPEST_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	slog.Info("tempest starting", "bind", cfg.BindAddress, "port", cfg.Port)

	hub := dispatcher.New(
		dispatcher.WithFactory(protocol.GameTypeUno, uno.Create),
	)

	srv, err := server.NewServer(cfg, hub.Events())
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := hub.Run(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("dispatcher: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := srv.Run(gctx); err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	return g.Wait()
}
