package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/MJE43/coindle/internal/api"
	"github.com/MJE43/coindle/internal/config"
	"github.com/MJE43/coindle/internal/feed"
	"github.com/MJE43/coindle/internal/stats"
	"github.com/MJE43/coindle/internal/store"
)

func main() {
	log.SetPrefix("[coindle-server] ")
	log.Printf("Starting Coindle stats server %s (commit %s)", api.Version, api.GitCommit)

	if err := config.LoadEnvFile(); err != nil {
		log.Fatalf("env file: %v", err)
	}
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, store.Options{
		Driver:      cfg.Store.Driver,
		SQLitePath:  cfg.Store.SQLitePath,
		PostgresDSN: cfg.Store.PostgresDSN,
		RedisURL:    cfg.Store.RedisURL,
	})
	if err != nil {
		log.Fatalf("store open failed (driver=%s): %v", cfg.Store.Driver, err)
	}
	defer db.Close()
	log.Printf("Store ready (driver=%s)", cfg.Store.Driver)

	agg := stats.NewAggregator(db, stats.Config{
		Secret:    cfg.Secret,
		GraceDays: cfg.GraceDays,
		Logger:    log.New(os.Stdout, "[STATS] ", log.LstdFlags),
	})

	hub := feed.NewHub(log.New(os.Stdout, "[FEED] ", log.LstdFlags), cfg.AllowedOrigins)
	go hub.Run(ctx)
	agg.OnSubmit(hub.Publish)

	server := api.NewServer(api.Options{
		Aggregator:     agg,
		Store:          db,
		Feed:           hub,
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
	})

	addr, err := server.Start(cfg.Addr)
	if err != nil {
		log.Fatalf("listen on %s failed: %v", cfg.Addr, err)
	}
	server.SecurityLogger().LogSystemStartup(addr.String(), map[string]interface{}{
		"store":        cfg.Store.Driver,
		"grace_days":   cfg.GraceDays,
		"cors_origins": len(cfg.AllowedOrigins),
		"secret":       cfg.Secret,
	})
	log.Printf("Listening on %s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Printf("Shutting down (%s)", sig)
	server.SecurityLogger().LogSystemShutdown(sig.String(), server.Uptime())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	// Stops the feed hub and closes subscriber sockets.
	cancel()
	log.Println("Shutdown complete")
}
