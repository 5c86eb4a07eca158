package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dmitrijs2005/kopfkino/internal/cli"
	"github.com/dmitrijs2005/kopfkino/internal/config"
	"github.com/dmitrijs2005/kopfkino/internal/filex"
	"github.com/dmitrijs2005/kopfkino/internal/logging"
	"github.com/dmitrijs2005/kopfkino/internal/remote"
	"github.com/dmitrijs2005/kopfkino/internal/remote/memory"
	"github.com/dmitrijs2005/kopfkino/internal/remote/postgres"
	"github.com/dmitrijs2005/kopfkino/internal/remote/redisstore"
	"github.com/dmitrijs2005/kopfkino/internal/workspace"
)

const stateFile = "state.json"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := logging.NewTextLogger(os.Stderr, cfg.LogLevel)

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	src, err := openSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	stateDir, err := filex.EnsureSubdDir(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("state dir: %w", err)
	}

	ws, err := workspace.Open(ctx, workspace.Params{
		Tenant:        cfg.Tenant,
		Source:        src,
		Logger:        logger,
		StatePath:     filepath.Join(stateDir, stateFile),
		AutosaveDelay: cfg.AutosaveDelay,
		SavedDisplay:  cfg.SavedDisplay,
	})
	if err != nil {
		return err
	}
	defer ws.Close()

	rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := ws.WaitReady(rctx); err != nil {
		return fmt.Errorf("load projects: %w", err)
	}

	go func() {
		<-ctx.Done()
		// Unblock the REPL; a second interrupt kills the process.
		_ = os.Stdin.Close()
	}()

	logger.Info(ctx, "workspace ready", "backend", cfg.Backend, "tenant", cfg.Tenant)
	cli.NewApp(cfg, ws, logger).Run(ctx)
	return nil
}

func openSource(ctx context.Context, cfg *config.Config, logger logging.Logger) (remote.Source, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		return postgres.Open(ctx, cfg.DatabaseDSN, logger)
	case config.BackendRedis:
		return redisstore.Open(ctx, cfg.RedisURL, logger)
	default:
		return memory.NewStore(), nil
	}
}
