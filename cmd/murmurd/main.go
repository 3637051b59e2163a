package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/preflight"
	"murmur/internal/records"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatalf("acquire lock: %v", err)
	}
	if !locked {
		log.Fatalf("another murmurd instance holds %s", cfg.LockPath())
	}
	defer lock.Unlock() //nolint:errcheck

	if failed := preflight.Failed(preflight.RunAll(ctx, cfg)); len(failed) > 0 {
		for _, result := range failed {
			fmt.Fprintf(os.Stderr, "preflight: %s: %s\n", result.Name, result.Detail)
		}
		os.Exit(1)
	}

	db, err := records.Open(cfg)
	if err != nil {
		log.Fatalf("open record store: %v", err)
	}
	defer db.Close()

	d, err := newDaemon(cfg, db, logger)
	if err != nil {
		log.Fatalf("assemble daemon: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		log.Fatalf("start daemon: %v", err)
	}

	<-ctx.Done()
	logger.Info("murmurd shutting down")
	d.Stop()
}
