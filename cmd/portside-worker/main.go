package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portside/internal/config"
	"portside/internal/rpc"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[BOOT] Failed to load config from %q: %v", *configPath, err)
	}

	settle := time.Duration(cfg.Worker.SettleMs) * time.Millisecond
	remote := rpc.NewSSHRemote(settle)
	worker := rpc.NewWorker(cfg.Worker.Addr, cfg.Worker.Key, remote)

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("[BOOT] Portside worker starting on %s", cfg.Worker.Addr)
	log.Printf("[BOOT] Command settle window: %s", settle)

	if err := worker.Serve(ctx); err != nil {
		log.Fatalf("[BOOT] Worker error: %v", err)
	}

	log.Println("[BOOT] Portside worker stopped cleanly.")
}
