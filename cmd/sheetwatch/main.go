// Command sheetwatch runs the two-stage ingestion daemon: it watches the
// intake directory for new captures and the staging directory for their
// grayscale copies, staging and analyzing files as they arrive. It stops
// on SIGINT or SIGTERM after letting any in-flight file finish.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/harveyblob04/vision-system/internal/config"
	"github.com/harveyblob04/vision-system/internal/pipeline"
	"github.com/harveyblob04/vision-system/internal/watch"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("sheetwatch %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("sheetwatch - watch a directory and extract sheet coordinates")
			fmt.Println()
			fmt.Println("Usage: sheetwatch [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables (also read from .env):")
			fmt.Println("  SHEETWATCH_INTAKE_DIR        directory watched for new captures (test_images)")
			fmt.Println("  SHEETWATCH_STAGING_DIR       directory for grayscale copies (copied_images)")
			fmt.Println("  SHEETWATCH_MARKER            marker substring for staged copies (grayscale)")
			fmt.Println("  SHEETWATCH_THRESHOLD         binarization level 0-255 (50)")
			fmt.Println("  SHEETWATCH_STEM_MODE         coords naming, prefix or full (prefix)")
			fmt.Println("  SHEETWATCH_STABILITY_TIMEOUT wait for a reported file to exist (10s)")
			fmt.Println("  SHEETWATCH_STABILITY_POLL    poll interval during that wait (500ms)")
			fmt.Println("  SHEETWATCH_RENAME_ATTEMPTS   rename retry budget (10)")
			fmt.Println("  SHEETWATCH_RENAME_BACKOFF    pause between rename attempts (1s)")
			fmt.Println("  SHEETWATCH_DEBOUNCE          pause before handling an event (500ms)")
			fmt.Println("  SHEETWATCH_DEBUG_ARTIFACTS   write mask and overlay copies (false)")
			fmt.Println("  SHEETWATCH_LOG_LEVEL         debug, info, warn or error (info)")
			return
		}
	}

	_ = godotenv.Load(".env") // ignore error if .env missing

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	for _, dir := range []string{cfg.IntakeDir, cfg.StagingDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	p := pipeline.New(cfg, logger)
	targets := []watch.Target{
		{
			Dir:      cfg.IntakeDir,
			Debounce: cfg.Debounce,
			Handle:   p.HandleIntake,
		},
		{
			Dir:      cfg.StagingDir,
			Debounce: cfg.Debounce,
			Match:    func(name string) bool { return strings.Contains(name, cfg.Marker) },
			Handle:   p.HandleStaged,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(target watch.Target) {
			defer wg.Done()
			if err := watch.Loop(ctx, target, logger); err != nil && ctx.Err() == nil {
				logger.Error("watch loop failed",
					slog.String("dir", target.Dir),
					slog.String("error", err.Error()))
			}
		}(target)
	}

	logger.Info("sheetwatch running",
		slog.String("intake", cfg.IntakeDir),
		slog.String("staging", cfg.StagingDir))
	wg.Wait()
	logger.Info("sheetwatch stopped")
}
