package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"extrato/internal/cli"
	"extrato/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	logger.Info("Starting archive-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	trigger := worker.NewTrigger(worker.Config{
		APIBaseURL:  cfg.ArchiveAPIURL,
		Interval:    cfg.TriggerInterval,
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
	})

	amqpClient := cli.InitAMQP(logger, cfg)
	if amqpClient != nil {
		defer amqpClient.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return trigger.Run(gctx)
	})

	if amqpClient != nil {
		// Runs by other instances mark periods done here, so the
		// ticker skips them.
		g.Go(func() error {
			return amqpClient.ConsumeArchiveRuns(gctx, trigger.HandleRunMessage)
		})
	} else {
		logger.Info("Skipping AMQP consumption - messaging disabled")
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker failed", "error", err)
		os.Exit(1)
	}

	// Give in-flight requests a moment to drain.
	time.Sleep(time.Second)
	logger.Info("Worker stopped gracefully")
}
