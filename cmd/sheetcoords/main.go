// Command sheetcoords runs rectangle detection over images named on the
// command line, printing the detected centers and writing the same
// coordinate artifacts the watch daemon would produce. It processes every
// argument even when some fail, and exits nonzero if any did.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/joho/godotenv"

	"github.com/harveyblob04/vision-system/internal/annotate"
	"github.com/harveyblob04/vision-system/internal/config"
	"github.com/harveyblob04/vision-system/internal/coords"
	"github.com/harveyblob04/vision-system/internal/detection"
)

func main() {
	threshold := flag.Int("threshold", -1, "binarization level 0-255 (-1 keeps the configured value)")
	stemMode := flag.String("stem-mode", "", `artifact naming, "prefix" or "full" (empty keeps the configured value)`)
	overlay := flag.Bool("overlay", false, "also write an annotated overlay beside each image")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: sheetcoords [flags] image...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	_ = godotenv.Load(".env") // ignore error if .env missing

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := applyOverrides(cfg, *threshold, *stemMode); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	extractor := detection.Extractor{
		Threshold: cfg.Threshold,
		SaveMask:  cfg.SaveDebugArtifacts,
		Logger:    logger,
	}
	writer := coords.Writer{Mode: cfg.StemMode}

	failed := false
	for _, path := range flag.Args() {
		if err := process(extractor, writer, *overlay, path); err != nil {
			logger.Error("extraction failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

// applyOverrides folds the command-line overrides into cfg. A threshold
// of -1 and an empty stem mode keep the configured values; anything else
// out of range is rejected rather than silently ignored.
func applyOverrides(cfg *config.Config, threshold int, stemMode string) error {
	if threshold != -1 {
		if threshold < 0 || threshold > 255 {
			return fmt.Errorf("threshold %d outside 0-255", threshold)
		}
		cfg.Threshold = uint8(threshold)
	}
	if stemMode != "" {
		mode := config.StemMode(stemMode)
		if mode != config.StemPrefix && mode != config.StemFull {
			return fmt.Errorf("unknown stem mode %q", stemMode)
		}
		cfg.StemMode = mode
	}
	return nil
}

// process extracts one image, prints its centers, and writes the
// coordinate artifact (plus the overlay when requested). An empty result
// writes nothing.
func process(extractor detection.Extractor, writer coords.Writer, overlay bool, path string) error {
	result, err := extractor.Extract(path)
	if err != nil {
		return err
	}

	centers := result.Centers()
	if len(centers) == 0 {
		fmt.Printf("%s: no rectangles\n", path)
		return nil
	}
	for _, c := range centers {
		fmt.Printf("%s: %d, %d\n", path, c.X, c.Y)
	}

	artifact, err := writer.Write(filepath.Dir(path), filepath.Base(path), centers)
	if err != nil {
		return err
	}
	fmt.Printf("%s: wrote %s\n", path, artifact)

	if overlay {
		gray, err := detection.LoadGray(path)
		if err != nil {
			return err
		}
		if err := imaging.Save(annotate.Overlay(gray, result.Rectangles), annotate.ArtifactPath(path)); err != nil {
			return err
		}
	}
	return nil
}
