package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gridwatch/internal/alerting"
	"gridwatch/internal/api"
	"gridwatch/internal/collector"
	"gridwatch/internal/config"
	"gridwatch/internal/db"
	"gridwatch/internal/logger"
	"gridwatch/internal/syncer"
	"gridwatch/internal/ws"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config/config.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.Default()
		} else {
			logger.Init("info")
			log := logger.WithComponent("main")
			log.Fatal().Err(err).Msg("load config")
		}
	}

	logger.Init(cfg.Log.Level)
	log := logger.WithComponent("main")
	if cfgPath != "" && err != nil {
		log.Warn().Str("path", cfgPath).Msg("config file not found, using defaults")
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("create database directory")
		}
	}
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("open database")
	}
	defer store.Close()

	hub := ws.NewHub()
	go hub.Run()

	generator := alerting.NewGenerator(store, hub)
	poller := syncer.NewPoller(store, syncer.Options{
		URL:          cfg.Sync.URL,
		PollInterval: cfg.Sync.PollInterval,
		ErrorCeiling: cfg.Sync.ErrorCeiling,
		Fetcher:      syncer.NewHTTPFetcher(cfg.Sync.FetchTimeout),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	meters := collector.NewManager(store, cfg.Meters)
	meters.Start(ctx)

	if cfg.Sync.AutoStart {
		poller.Start()
	}
	if cfg.Generator.AutoStart {
		delay := cfg.Generator.StartDelay
		go func() {
			select {
			case <-time.After(delay):
				generator.Start()
			case <-ctx.Done():
			}
		}()
	}

	router := api.NewRouter(&api.Handler{
		Store:     store,
		Generator: generator,
		Poller:    poller,
		Hub:       hub,
	})
	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Server.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	poller.Stop()
	generator.Stop()
	meters.Wait()
	log.Info().Msg("stopped gracefully")
}
