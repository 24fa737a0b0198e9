package detection

import (
	"image"
	"image/color"
	"testing"
)

// uniformGray creates a grayscale image filled with a single value.
func uniformGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// fillRect paints a rectangular region of img with the given value.
func fillRect(img *image.Gray, r image.Rectangle, v uint8) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
}

func TestBinarizeInverse(t *testing.T) {
	img := uniformGray(20, 20, 200)
	fillRect(img, image.Rect(5, 5, 15, 15), 30)

	mask := binarizeInverse(img, 50)

	if got := mask.GrayAt(10, 10).Y; got != 255 {
		t.Errorf("dark pixel: got %d, want 255", got)
	}
	if got := mask.GrayAt(2, 2).Y; got != 0 {
		t.Errorf("light pixel: got %d, want 0", got)
	}
}

func TestBinarizeInverse_Boundary(t *testing.T) {
	img := uniformGray(3, 1, 0)
	img.SetGray(0, 0, color.Gray{Y: 49})
	img.SetGray(1, 0, color.Gray{Y: 50})
	img.SetGray(2, 0, color.Gray{Y: 51})

	mask := binarizeInverse(img, 50)

	if mask.GrayAt(0, 0).Y != 255 {
		t.Error("luminance 49 should be foreground")
	}
	if mask.GrayAt(1, 0).Y != 255 {
		t.Error("luminance 50 (exactly at the level) should be foreground")
	}
	if mask.GrayAt(2, 0).Y != 0 {
		t.Error("luminance 51 should be background")
	}
}

func TestBinarizeInverse_MaxLevel(t *testing.T) {
	img := uniformGray(4, 4, 255)

	mask := binarizeInverse(img, 255)

	for i, v := range mask.Pix {
		if v != 255 {
			t.Fatalf("pixel %d: got %d, want 255 (level 255 keeps every pixel)", i, v)
		}
	}
}

func TestZeroBorder(t *testing.T) {
	mask := uniformGray(10, 10, 255)

	zeroBorder(mask)

	border := []image.Point{
		{X: 0, Y: 0}, {X: 9, Y: 0}, {X: 0, Y: 9}, {X: 9, Y: 9},
		{X: 5, Y: 0}, {X: 0, Y: 5}, {X: 9, Y: 5}, {X: 5, Y: 9},
	}
	for _, p := range border {
		if got := mask.GrayAt(p.X, p.Y).Y; got != 0 {
			t.Errorf("border pixel (%d,%d): got %d, want 0", p.X, p.Y, got)
		}
	}
	interior := []image.Point{{X: 1, Y: 1}, {X: 5, Y: 5}, {X: 8, Y: 8}}
	for _, p := range interior {
		if got := mask.GrayAt(p.X, p.Y).Y; got != 255 {
			t.Errorf("interior pixel (%d,%d): got %d, want 255", p.X, p.Y, got)
		}
	}
}
