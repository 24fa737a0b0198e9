// Package coords writes rectangle centre coordinates to plain text files
// that sit alongside the images they describe.
package coords

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/harveyblob04/vision-system/internal/config"
)

// ErrWriteFailed reports that a coordinates file could not be created or
// fully written.
var ErrWriteFailed = errors.New("coords: write failed")

// Writer emits one "<x>, <y>" line per rectangle centre.
type Writer struct {
	// Mode selects how the output file name is derived from the image name.
	Mode config.StemMode
}

// Stem derives the coordinate file stem for name under the given mode.
// In prefix mode the stem is everything before the first underscore of
// the base name; a name without an underscore is used whole, extension
// included. In full mode the stem is the base name without its extension.
func Stem(name string, mode config.StemMode) string {
	base := filepath.Base(name)
	if mode == config.StemFull {
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	stem, _, _ := strings.Cut(base, "_")
	return stem
}

// IsArtifact reports whether name is a coordinates file produced by
// Write.
func IsArtifact(name string) bool {
	return strings.HasSuffix(name, "_coords.txt")
}

// Write stores the centres for imageName in "<stem>_coords.txt" under dir,
// replacing any previous file with that name. It returns the path of the
// written file. An empty centre list still produces the file, truncated
// to zero length.
func (w Writer) Write(dir, imageName string, centers []image.Point) (string, error) {
	path := filepath.Join(dir, Stem(imageName, w.Mode)+"_coords.txt")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	for _, c := range centers {
		if _, err := fmt.Fprintf(f, "%d, %d\n", c.X, c.Y); err != nil {
			f.Close()
			return "", fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return path, nil
}
