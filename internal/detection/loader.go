package detection

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io/fs"
	"os"

	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
)

var (
	// ErrFileNotFound means the path did not exist when extraction began.
	ErrFileNotFound = errors.New("detection: file not found")

	// ErrFileUnreadable means the path exists but could not be opened.
	ErrFileUnreadable = errors.New("detection: file unreadable")

	// ErrDecodeFailed means the file contents are not a decodable image.
	ErrDecodeFailed = errors.New("detection: decode failed")
)

// LoadGray opens and decodes the image at path, reduced to 8-bit
// grayscale. Sources that are already single-channel are returned as
// decoded; color sources are converted with the standard luminance
// weights. Registered formats: PNG, JPEG, GIF, BMP, TIFF.
//
// # Errors
//
//   - ErrFileNotFound if the path does not exist
//   - ErrFileUnreadable if the path cannot be opened for reading
//   - ErrDecodeFailed if the contents are not a valid image
func LoadGray(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrFileUnreadable, err)
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrFileUnreadable, path)
	}

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	if gray, ok := img.(*image.Gray); ok {
		return gray, nil
	}
	b := img.Bounds()
	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)
	return gray, nil
}
