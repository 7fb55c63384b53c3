package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-evalset/internal/config"
	"github.com/ahrav/go-evalset/internal/worker"
	"github.com/ahrav/go-evalset/pkg/events"
)

// dialTemporal connects to the configured Temporal frontend.
func dialTemporal(cfg *config.Config) (client.Client, error) {
	return client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporallog.NewStructuredLogger(slog.Default()),
	})
}

// workerCommand serves the dataset workflow until ctx is cancelled.
func workerCommand(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "configuration file path")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}

	cfg, err := loadConfig(*configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return exitFailure
	}

	store, err := worker.OpenStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open database: %v\n", err)
		return exitFailure
	}
	if store != nil {
		defer store.Close()
	}

	pipeline, err := worker.NewGenerator(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to build generator: %v\n", err)
		return exitFailure
	}
	defer func() { _ = pipeline.Close() }()

	sinks, err := worker.NewSinkFactory(cfg, store, worker.PerRunOutput)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to configure output: %v\n", err)
		return exitFailure
	}

	c, err := dialTemporal(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create Temporal client: %v\n", err)
		return exitFailure
	}
	defer c.Close()

	w := sdkworker.New(c, cfg.Temporal.TaskQueue, sdkworker.Options{})
	worker.RegisterAll(w, pipeline.Generator, worker.NewSourceFactory(store), sinks,
		cfg.Batch.TaskTimeout, events.NewLogSink(slog.Default()))

	slog.Default().With("component", "cli").Info("worker started",
		"host_port", cfg.Temporal.HostPort,
		"namespace", cfg.Temporal.Namespace,
		"task_queue", cfg.Temporal.TaskQueue)

	stop := make(chan any)
	go func() {
		<-ctx.Done()
		close(stop)
	}()
	if err := w.Run(stop); err != nil {
		fmt.Fprintf(stderr, "Worker failed: %v\n", err)
		return exitFailure
	}
	return exitOK
}
