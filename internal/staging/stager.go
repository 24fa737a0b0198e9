// Package staging turns newly observed captures into numbered grayscale
// copies ready for detection.
//
// Each staged file goes through four steps: wait for the file to exist,
// rename it to the next free sequence number, copy it into the staging
// directory with the grayscale marker, convert the copy to 8-bit
// luminance in place. The steps are not transactional: a failure keeps
// whatever progress was already made on disk.
package staging

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/harveyblob04/vision-system/internal/config"
)

// StagedFile records where a staged capture ended up.
type StagedFile struct {
	// Source is the path originally reported by the watcher.
	Source string

	// Path is the grayscale copy inside the staging directory.
	Path string

	// ID is the assigned sequence number, unique within the intake
	// directory for the life of this process.
	ID int
}

// Stager assigns sequence numbers to intake files and materializes their
// grayscale staging copies.
//
// A single Stager serializes scan-then-rename with a mutex, so two
// goroutines staging into the same directory cannot claim the same ID.
// Separate processes still can: the directory listing is the only shared
// state, and nothing locks it across processes.
type Stager struct {
	cfg    *config.Config
	logger *slog.Logger

	// mu guards the scan of existing IDs together with the rename that
	// claims the next one.
	mu sync.Mutex

	// rename is swapped in tests to simulate contended renames.
	rename func(oldpath, newpath string) error
}

// New returns a Stager using cfg. A nil logger means slog.Default().
func New(cfg *config.Config, logger *slog.Logger) *Stager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stager{cfg: cfg, logger: logger, rename: os.Rename}
}

// Stage ingests a newly observed capture. It waits for the file to exist
// on disk, renames it to the next free sequence number in its own
// directory, copies the renamed file into the staging directory with the
// grayscale marker, and converts that copy to 8-bit luminance in place.
//
// On ErrGrayscaleConversion the returned StagedFile is still populated:
// the rename and the copy have already happened and are kept.
//
// # Errors
//
//   - ErrFileNeverAppeared: the path was still absent after the stability timeout
//   - ErrRenameFatal: a rename attempt failed with a non-contention error
//   - ErrRenameContended: the rename retry budget ran out
//   - ErrCopyFailed: the staging directory or the copy could not be written
//   - ErrGrayscaleConversion: the copy could not be decoded or re-encoded
//
// Cancelling ctx aborts the stability wait and the retry backoff.
func (s *Stager) Stage(ctx context.Context, srcPath string) (StagedFile, error) {
	if err := s.waitForFile(ctx, srcPath); err != nil {
		return StagedFile{}, err
	}

	dir := filepath.Dir(srcPath)
	ext := filepath.Ext(srcPath)

	id, renamed, err := s.claim(ctx, srcPath, dir, ext)
	if err != nil {
		return StagedFile{}, err
	}
	s.logger.Info("staged capture",
		slog.String("source", srcPath),
		slog.String("renamed", renamed),
		slog.Int("id", id))

	copyPath, err := s.copyToStaging(renamed, id, ext)
	if err != nil {
		return StagedFile{}, err
	}

	staged := StagedFile{Source: srcPath, Path: copyPath, ID: id}
	if err := s.toGrayscale(copyPath); err != nil {
		// rename and copy are retained even when conversion fails
		return staged, err
	}
	return staged, nil
}

// waitForFile polls until path exists. Watchers can report a creation
// before the producer has finished (or even started) writing the entry,
// so existence is checked rather than assumed.
func (s *Stager) waitForFile(ctx context.Context, path string) error {
	deadline := time.Now().Add(s.cfg.StabilityTimeout)
	ticker := time.NewTicker(s.cfg.StabilityPoll)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s after %s", ErrFileNeverAppeared, path, s.cfg.StabilityTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// claim holds the mutex across ID scan and rename, so the claimed number
// is on disk before any other in-process staging scans again.
func (s *Stager) claim(ctx context.Context, srcPath, dir, ext string) (int, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := nextID(dir)
	if err != nil {
		return 0, "", err
	}
	renamed := filepath.Join(dir, strconv.Itoa(id)+ext)
	if err := s.renameWithRetry(ctx, srcPath, renamed); err != nil {
		return 0, "", err
	}
	return id, renamed, nil
}

// nextID scans dir for base names that are pure digit runs and returns
// one past the largest, or 1 for a directory with none.
func nextID(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("staging: scan %s: %w", dir, err)
	}
	max := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if id, ok := parseID(strings.TrimSuffix(name, filepath.Ext(name))); ok && id > max {
			max = id
		}
	}
	return max + 1, nil
}

// parseID accepts only unsigned decimal digit runs, so "12a", "-4" and
// marker-suffixed stems never count toward the sequence.
func parseID(stem string) (int, bool) {
	if stem == "" {
		return 0, false
	}
	for _, r := range stem {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(stem)
	if err != nil {
		return 0, false
	}
	return id, true
}

// IsClaimed reports whether name already carries a sequence number: its
// extension-stripped stem is a pure digit run, the shape claim gives
// every file it renames. Event handlers use it to recognize the stager's
// own output, since a rename within the watched directory surfaces as a
// fresh creation event for the new name.
func IsClaimed(name string) bool {
	_, ok := parseID(strings.TrimSuffix(name, filepath.Ext(name)))
	return ok
}

// renameWithRetry renames from to to, retrying retryable failures up to
// the configured budget with a fixed backoff between attempts.
func (s *Stager) renameWithRetry(ctx context.Context, from, to string) error {
	var last *RenameError
	for attempt := 1; attempt <= s.cfg.RenameAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.RenameBackoff):
			}
		}

		err := s.rename(from, to)
		if err == nil {
			return nil
		}
		rerr := classifyRename(from, to, err)
		if !rerr.Retryable {
			return rerr
		}
		last = rerr
		s.logger.Warn("rename contended, retrying",
			slog.String("from", from),
			slog.String("to", to),
			slog.Int("attempt", attempt),
			slog.Int("budget", s.cfg.RenameAttempts))
	}
	return fmt.Errorf("staging: gave up after %d attempts: %w", s.cfg.RenameAttempts, last)
}

// copyToStaging copies the renamed file into the staging directory under
// "<ID><marker suffix><ext>", creating the directory if needed.
func (s *Stager) copyToStaging(renamed string, id int, ext string) (string, error) {
	if err := os.MkdirAll(s.cfg.StagingDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create %s: %v", ErrCopyFailed, s.cfg.StagingDir, err)
	}
	dst := filepath.Join(s.cfg.StagingDir, strconv.Itoa(id)+s.cfg.CopySuffix()+ext)
	if err := copyPreserving(renamed, dst); err != nil {
		return "", fmt.Errorf("%w: %s -> %s: %v", ErrCopyFailed, renamed, dst, err)
	}
	return dst, nil
}

// copyPreserving copies src to dst, carrying over the file mode and the
// modification time. The access time is set to the modification time;
// FileInfo does not expose the original portably.
func copyPreserving(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	mod := info.ModTime()
	return os.Chtimes(dst, mod, mod)
}

// toGrayscale rewrites the staged copy as single-channel luminance.
func (s *Stager) toGrayscale(path string) error {
	img, err := imaging.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrGrayscaleConversion, path, err)
	}
	gray := image.NewGray(img.Bounds())
	draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
	if err := imaging.Save(gray, path); err != nil {
		return fmt.Errorf("%w: save %s: %v", ErrGrayscaleConversion, path, err)
	}
	return nil
}
