// Package config loads pipeline settings from the environment.
//
// Every option has a default matching the reference deployment, so a bare
// process with no environment at all runs the standard intake/staging
// layout. Variables use the SHEETWATCH_ prefix (e.g. SHEETWATCH_THRESHOLD).
// Durations accept Go syntax ("500ms", "10s").
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// StemMode selects how the coordinate artifact name is derived from the
// image file name. The two modes reflect the two conventions used by the
// pipeline's historical producers; both are preserved rather than picking
// one silently.
type StemMode string

const (
	// StemPrefix names the artifact after the portion of the image name
	// before the first underscore ("3_grayscale.png" -> "3_coords.txt").
	StemPrefix StemMode = "prefix"

	// StemFull names the artifact after the full extension-stripped base
	// name ("3_grayscale.png" -> "3_grayscale_coords.txt").
	StemFull StemMode = "full"
)

// Config holds every tunable of the watch/stage/extract pipeline.
type Config struct {
	// IntakeDir receives raw captures and is watched for new files.
	IntakeDir string

	// StagingDir receives renamed grayscale copies. Relative paths are
	// resolved against the process working directory.
	StagingDir string

	// Marker tags grayscale copies: the copy gets "_<Marker>" inserted
	// before its extension, and the staging watcher only dispatches
	// files whose name contains Marker.
	Marker string

	// StabilityTimeout bounds how long the stager waits for a newly
	// reported file to exist on disk.
	StabilityTimeout time.Duration

	// StabilityPoll is the interval between existence checks during the
	// stability wait.
	StabilityPoll time.Duration

	// RenameAttempts caps the retry loop for contended renames.
	RenameAttempts int

	// RenameBackoff is the fixed pause between rename attempts.
	RenameBackoff time.Duration

	// Debounce is the pause between observing a creation event and
	// dispatching it, giving the producer time to finish writing.
	Debounce time.Duration

	// Threshold is the fixed binarization level: pixels with luminance
	// at or below it become foreground. It is a policy constant, never
	// derived from image statistics.
	Threshold uint8

	// StemMode picks the coordinate artifact naming convention.
	StemMode StemMode

	// SaveDebugArtifacts enables the thresholded-mask and annotated
	// overlay copies written beside each processed image.
	SaveDebugArtifacts bool

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string
}

// Load builds a Config from the environment, applying defaults for unset
// variables and rejecting values that cannot work (a threshold outside
// 0-255, an unknown stem mode, non-positive retry budgets).
func Load() (*Config, error) {
	threshold, err := getEnvInt("SHEETWATCH_THRESHOLD", 50)
	if err != nil {
		return nil, err
	}
	if threshold < 0 || threshold > 255 {
		return nil, fmt.Errorf("config: threshold %d outside 0-255", threshold)
	}

	attempts, err := getEnvInt("SHEETWATCH_RENAME_ATTEMPTS", 10)
	if err != nil {
		return nil, err
	}
	if attempts < 1 {
		return nil, fmt.Errorf("config: rename attempts must be positive, got %d", attempts)
	}

	cfg := &Config{
		IntakeDir:          getEnv("SHEETWATCH_INTAKE_DIR", "test_images"),
		StagingDir:         getEnv("SHEETWATCH_STAGING_DIR", "copied_images"),
		Marker:             getEnv("SHEETWATCH_MARKER", "grayscale"),
		RenameAttempts:     attempts,
		Threshold:          uint8(threshold),
		StemMode:           StemMode(getEnv("SHEETWATCH_STEM_MODE", string(StemPrefix))),
		SaveDebugArtifacts: getEnvBool("SHEETWATCH_DEBUG_ARTIFACTS", false),
		LogLevel:           getEnv("SHEETWATCH_LOG_LEVEL", "info"),
	}

	for _, d := range []struct {
		dst      *time.Duration
		key      string
		fallback time.Duration
	}{
		{&cfg.StabilityTimeout, "SHEETWATCH_STABILITY_TIMEOUT", 10 * time.Second},
		{&cfg.StabilityPoll, "SHEETWATCH_STABILITY_POLL", 500 * time.Millisecond},
		{&cfg.RenameBackoff, "SHEETWATCH_RENAME_BACKOFF", time.Second},
		{&cfg.Debounce, "SHEETWATCH_DEBOUNCE", 500 * time.Millisecond},
	} {
		v, err := getEnvDuration(d.key, d.fallback)
		if err != nil {
			return nil, err
		}
		if v <= 0 {
			return nil, fmt.Errorf("config: %s must be positive, got %s", d.key, v)
		}
		*d.dst = v
	}

	if cfg.StemMode != StemPrefix && cfg.StemMode != StemFull {
		return nil, fmt.Errorf("config: unknown stem mode %q (want %q or %q)",
			cfg.StemMode, StemPrefix, StemFull)
	}
	if strings.TrimSpace(cfg.Marker) == "" {
		return nil, fmt.Errorf("config: marker must not be empty")
	}

	return cfg, nil
}

// CopySuffix is the string inserted before the extension of a staged
// grayscale copy ("_grayscale" by default).
func (c *Config) CopySuffix() string {
	return "_" + c.Marker
}

// SlogLevel maps the configured level name to a slog.Level. Unknown
// names fall back to info rather than failing startup.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return i, nil
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
