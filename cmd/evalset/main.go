// Command evalset bootstraps retrieval evaluation datasets by generating
// question/answer pairs for every item of a corpus.
//
// Usage:
//
//	evalset run    -config evalset.yaml [-concurrency K] [-out path] [-limit N]
//	evalset worker -config evalset.yaml
//	evalset submit -config evalset.yaml [-run-id ID] [-wait]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahrav/go-evalset/internal/config"
	"github.com/ahrav/go-evalset/internal/domain"
)

// Exit codes.
const (
	exitOK        = 0
	exitFailure   = 1
	exitCancelled = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := dispatch(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func dispatch(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitFailure
	}
	switch args[0] {
	case "run":
		return runCommand(ctx, args[1:], stdout, stderr)
	case "worker":
		return workerCommand(ctx, args[1:], stderr)
	case "submit":
		return submitCommand(ctx, args[1:], stdout, stderr)
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return exitFailure
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: evalset <command> [flags]

commands:
  run     generate a dataset locally and write it to the configured output
  worker  serve the dataset workflow on a Temporal task queue
  submit  start a dataset workflow for the configured corpus`)
}

// loadConfig reads path (if set), applies environment overrides, and
// installs the configured logger as the slog default.
func loadConfig(path string, stderr io.Writer) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(cfg.Log.NewLogger(stderr))
	return cfg, nil
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, domain.ErrBatchCancelled), errors.Is(err, context.Canceled):
		return exitCancelled
	default:
		return exitFailure
	}
}
