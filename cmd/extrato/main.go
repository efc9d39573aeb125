package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"extrato/internal/archive"
	"extrato/internal/backup"
	"extrato/internal/cli"
	apphttp "extrato/internal/http"
	"extrato/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	backend := cli.InitBackupBackend(logger, cfg)
	verifier := backup.NewVerifier(backend, repo)

	coordinator, err := archive.New(repo, verifier, archive.Config{
		BatchSize:     cfg.ArchiveBatchSize,
		RequireBackup: cfg.RequireBackup,
	})
	if err != nil {
		logger.Error("Failed to build archive coordinator", "error", err)
		os.Exit(1)
	}

	amqpClient := cli.InitAMQP(logger, cfg)
	svc := services.NewArchiveService(repo, backend, coordinator, amqpClient)

	srv := apphttp.NewServer(":"+cfg.Port, repo, svc)
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting extrato server",
		"port", cfg.Port,
		"backup_backend", cfg.BackupBackend,
		"require_backup", cfg.RequireBackup,
		"batch_size", cfg.ArchiveBatchSize)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
