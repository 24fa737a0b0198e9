// Package pipeline wires the stager, the extractor, the coordinate
// writer and the overlay renderer into the two per-event handlers the
// daemon registers with its watch loops.
package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/harveyblob04/vision-system/internal/annotate"
	"github.com/harveyblob04/vision-system/internal/config"
	"github.com/harveyblob04/vision-system/internal/coords"
	"github.com/harveyblob04/vision-system/internal/detection"
	"github.com/harveyblob04/vision-system/internal/staging"
)

// Pipeline owns the per-file processing stages. One Pipeline serves both
// watch loops; its stager serializes ID claims internally.
type Pipeline struct {
	cfg       *config.Config
	logger    *slog.Logger
	stager    *staging.Stager
	extractor detection.Extractor
	writer    coords.Writer
}

// New builds a Pipeline from cfg. A nil logger means slog.Default().
func New(cfg *config.Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:    cfg,
		logger: logger,
		stager: staging.New(cfg, logger),
		extractor: detection.Extractor{
			Threshold: cfg.Threshold,
			SaveMask:  cfg.SaveDebugArtifacts,
			Logger:    logger,
		},
		writer: coords.Writer{Mode: cfg.StemMode},
	}
}

// HandleIntake stages one newly created capture. Paths whose stem is
// already a claimed sequence number are skipped: the stager's rename
// inside the watched directory surfaces as another creation event, and
// staging that file again would renumber it forever. The returned error
// is for the watch loop to log; the loop keeps running either way.
func (p *Pipeline) HandleIntake(ctx context.Context, path string) error {
	if staging.IsClaimed(filepath.Base(path)) {
		p.logger.Debug("already claimed, skipping", slog.String("path", path))
		return nil
	}
	staged, err := p.stager.Stage(ctx, path)
	if err != nil {
		return err
	}
	p.logger.Debug("capture ready for detection",
		slog.Int("id", staged.ID),
		slog.String("copy", staged.Path))
	return nil
}

// HandleStaged runs detection over one staged grayscale copy. Masks,
// overlays and coordinate files written by earlier events can match the
// staging watcher's marker filter too; they are recognized by their name
// suffixes and skipped, so the loop never consumes its own output. A
// coordinate artifact is written only when at least one rectangle was
// found; a clean empty result leaves no artifact behind. With debug
// artifacts enabled the annotated overlay is written as well, and an
// overlay failure is logged without failing the event.
func (p *Pipeline) HandleStaged(ctx context.Context, path string) error {
	base := filepath.Base(path)
	if detection.IsMaskArtifact(base) || annotate.IsArtifact(base) || coords.IsArtifact(base) {
		p.logger.Debug("pipeline artifact, skipping", slog.String("path", path))
		return nil
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return nil
	}

	result, err := p.extractor.Extract(path)
	if err != nil {
		return err
	}
	if len(result.Rectangles) == 0 {
		p.logger.Info("no rectangles found", slog.String("path", path))
		return nil
	}

	artifact, err := p.writer.Write(filepath.Dir(path), base, result.Centers())
	if err != nil {
		return err
	}
	p.logger.Info("coordinates written",
		slog.String("artifact", artifact),
		slog.Int("rectangles", len(result.Rectangles)))

	if p.cfg.SaveDebugArtifacts {
		if err := p.saveOverlay(path, result.Rectangles); err != nil {
			p.logger.Warn("overlay not written",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// saveOverlay re-reads the grayscale source and writes the annotated
// copy beside it.
func (p *Pipeline) saveOverlay(path string, rects []detection.Rectangle) error {
	gray, err := detection.LoadGray(path)
	if err != nil {
		return err
	}
	return imaging.Save(annotate.Overlay(gray, rects), annotate.ArtifactPath(path))
}
