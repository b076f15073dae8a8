package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smelt/config"
	"smelt/internal/adapter/codec/ffmpeg"
	"smelt/internal/adapter/codec/imaging"
	HTTPAdapter "smelt/internal/adapter/http"
	"smelt/internal/adapter/storage/memory"
	"smelt/internal/adapter/storage/sqlite"
	"smelt/internal/infrastructure/logger"
	"smelt/internal/port"
	"smelt/internal/service"
)

const cleanupInterval = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error.Printf("failed to load config: %v", err)
		os.Exit(1)
	}

	logger.Info.Printf("starting smelt on %s (slots=%d, queue=%d)",
		cfg.Addr(), cfg.WorkerSlots, cfg.QueueCapacity)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Error.Printf("failed to create data directory: %v", err)
		os.Exit(1)
	}

	transcoder := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath)
	if err := transcoder.CheckBinaries(); err != nil {
		logger.Error.Printf("codec check failed: %v", err)
		os.Exit(1)
	}

	var store port.JobStore
	switch cfg.StoreBackend {
	case "memory":
		store = memory.NewStore()
	default:
		store, err = sqlite.NewStore(cfg.DataDir)
		if err != nil {
			logger.Error.Printf("failed to open job store: %v", err)
			os.Exit(1)
		}
	}
	defer func() { _ = store.Close() }()

	bus := service.NewEventBus()
	cancels := service.NewCancelRegistry()

	pipeline := service.NewPipeline(transcoder, imaging.New(), service.Limits{
		MaxInputBytes:    cfg.MaxUploadBytes(),
		MaxOutputBytes:   cfg.MaxOutputBytes(),
		MaxSourceSeconds: float64(cfg.MaxSourceSeconds),
	}, cfg.DataDir)

	jobs := service.NewJobs(store, bus, cancels, cfg.QueueCapacity, cfg.Retention(), cfg.DataDir)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	pool := service.NewWorkerPool(store, pipeline, bus, cancels, cfg.WorkerSlots, cfg.MaxJobDuration())
	pool.Start(workerCtx)

	// Periodic purge of terminal jobs past retention
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := jobs.Cleanup(); err != nil {
					logger.Error.Printf("cleanup failed: %v", err)
				}
			case <-workerCtx.Done():
				return
			}
		}
	}()

	server := HTTPAdapter.NewServer(jobs, bus, cfg.MaxUploadBytes())
	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info.Printf("received %s, shutting down", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error.Printf("http shutdown error: %v", err)
		}

		workerCancel()
		pool.Wait()

		logger.Info.Printf("shutdown complete")
	}()

	logger.Info.Printf("server listening on %s", cfg.Addr())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error.Printf("server failed: %v", err)
		os.Exit(1)
	}
}
