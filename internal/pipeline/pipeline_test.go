package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/harveyblob04/vision-system/internal/config"
	"github.com/harveyblob04/vision-system/internal/detection"
	"github.com/harveyblob04/vision-system/internal/staging"
	"github.com/harveyblob04/vision-system/internal/watch"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		IntakeDir:        filepath.Join(root, "intake"),
		StagingDir:       filepath.Join(root, "staging"),
		Marker:           "grayscale",
		StabilityTimeout: 300 * time.Millisecond,
		StabilityPoll:    5 * time.Millisecond,
		RenameAttempts:   3,
		RenameBackoff:    time.Millisecond,
		Debounce:         time.Millisecond,
		Threshold:        50,
		StemMode:         config.StemPrefix,
	}
	for _, dir := range []string{cfg.IntakeDir, cfg.StagingDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return cfg
}

func testPipeline(t *testing.T, cfg *config.Config) *Pipeline {
	t.Helper()
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// sheetImage builds a grayscale canvas with one filled rectangle.
func sheetImage(w, h int, bg uint8, r image.Rectangle, fg uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = bg
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetGray(x, y, color.Gray{Y: fg})
		}
	}
	return img
}

func writeImagePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func TestHandleStagedWritesCoords(t *testing.T) {
	cfg := testConfig(t)
	p := testPipeline(t, cfg)

	path := filepath.Join(cfg.StagingDir, "3_grayscale.png")
	writeImagePNG(t, path, sheetImage(300, 300, 200, image.Rect(100, 100, 200, 200), 30))

	if err := p.HandleStaged(context.Background(), path); err != nil {
		t.Fatalf("HandleStaged: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(cfg.StagingDir, "3_coords.txt"))
	if err != nil {
		t.Fatalf("coordinate artifact missing: %v", err)
	}
	if string(got) != "149, 149\n" {
		t.Errorf("artifact content = %q, want %q", got, "149, 149\n")
	}
}

func TestHandleStagedEmptyResultNoArtifact(t *testing.T) {
	cfg := testConfig(t)
	p := testPipeline(t, cfg)

	path := filepath.Join(cfg.StagingDir, "4_grayscale.png")
	writeImagePNG(t, path, sheetImage(200, 200, 255, image.Rectangle{}, 0))

	if err := p.HandleStaged(context.Background(), path); err != nil {
		t.Fatalf("HandleStaged: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.StagingDir, "4_coords.txt")); !os.IsNotExist(err) {
		t.Errorf("artifact written for an empty result (stat err = %v)", err)
	}
}

func TestHandleStagedDebugArtifacts(t *testing.T) {
	cfg := testConfig(t)
	cfg.SaveDebugArtifacts = true
	p := testPipeline(t, cfg)

	path := filepath.Join(cfg.StagingDir, "5_grayscale.png")
	writeImagePNG(t, path, sheetImage(300, 300, 200, image.Rect(100, 100, 200, 200), 30))

	if err := p.HandleStaged(context.Background(), path); err != nil {
		t.Fatalf("HandleStaged: %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.StagingDir, "5_coords.txt")); err != nil {
		t.Errorf("coordinate artifact missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.StagingDir, "5_grayscale_bw.png")); err != nil {
		t.Errorf("mask artifact missing: %v", err)
	}

	f, err := os.Open(filepath.Join(cfg.StagingDir, "5_grayscale_overlay.png"))
	if err != nil {
		t.Fatalf("overlay artifact missing: %v", err)
	}
	defer f.Close()
	overlay, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode overlay: %v", err)
	}
	if b := overlay.Bounds(); b.Dx() != 300 || b.Dy() != 300 {
		t.Errorf("overlay dimensions = %dx%d, want 300x300", b.Dx(), b.Dy())
	}
}

func TestHandleStagedNoDebugArtifactsByDefault(t *testing.T) {
	cfg := testConfig(t)
	p := testPipeline(t, cfg)

	path := filepath.Join(cfg.StagingDir, "9_grayscale.png")
	writeImagePNG(t, path, sheetImage(300, 300, 200, image.Rect(100, 100, 200, 200), 30))

	if err := p.HandleStaged(context.Background(), path); err != nil {
		t.Fatalf("HandleStaged: %v", err)
	}
	for _, name := range []string{"9_grayscale_bw.png", "9_grayscale_overlay.png"} {
		if _, err := os.Stat(filepath.Join(cfg.StagingDir, name)); !os.IsNotExist(err) {
			t.Errorf("%s written without debug artifacts enabled (stat err = %v)", name, err)
		}
	}
}

func TestHandleStagedDecodeFailure(t *testing.T) {
	cfg := testConfig(t)
	p := testPipeline(t, cfg)

	path := filepath.Join(cfg.StagingDir, "6_grayscale.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	err := p.HandleStaged(context.Background(), path)
	if !errors.Is(err, detection.ErrDecodeFailed) {
		t.Fatalf("error = %v, want ErrDecodeFailed", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.StagingDir, "6_coords.txt")); !os.IsNotExist(err) {
		t.Errorf("artifact written despite decode failure (stat err = %v)", err)
	}
}

func TestHandleStagedSkipsDirectory(t *testing.T) {
	cfg := testConfig(t)
	p := testPipeline(t, cfg)

	dir := filepath.Join(cfg.StagingDir, "odd_grayscale.png")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := p.HandleStaged(context.Background(), dir); err != nil {
		t.Errorf("HandleStaged on a directory = %v, want nil", err)
	}
}

func TestHandleIntakeThenStaged(t *testing.T) {
	cfg := testConfig(t)
	p := testPipeline(t, cfg)

	src := filepath.Join(cfg.IntakeDir, "cap.png")
	capture := image.NewNRGBA(image.Rect(0, 0, 300, 300))
	for i := 0; i < len(capture.Pix); i += 4 {
		capture.Pix[i+0] = 200
		capture.Pix[i+1] = 200
		capture.Pix[i+2] = 200
		capture.Pix[i+3] = 255
	}
	for y := 100; y < 200; y++ {
		for x := 100; x < 200; x++ {
			capture.SetNRGBA(x, y, color.NRGBA{R: 30, G: 30, B: 30, A: 255})
		}
	}
	writeImagePNG(t, src, capture)

	if err := p.HandleIntake(context.Background(), src); err != nil {
		t.Fatalf("HandleIntake: %v", err)
	}

	copyPath := filepath.Join(cfg.StagingDir, "1_grayscale.png")
	if _, err := os.Stat(copyPath); err != nil {
		t.Fatalf("staged copy missing: %v", err)
	}

	if err := p.HandleStaged(context.Background(), copyPath); err != nil {
		t.Fatalf("HandleStaged: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(cfg.StagingDir, "1_coords.txt"))
	if err != nil {
		t.Fatalf("coordinate artifact missing: %v", err)
	}
	if string(got) != "149, 149\n" {
		t.Errorf("artifact content = %q, want %q", got, "149, 149\n")
	}
}

func TestHandleIntakeMissingFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.StabilityTimeout = 30 * time.Millisecond
	p := testPipeline(t, cfg)

	err := p.HandleIntake(context.Background(), filepath.Join(cfg.IntakeDir, "never.png"))
	if !errors.Is(err, staging.ErrFileNeverAppeared) {
		t.Errorf("error = %v, want ErrFileNeverAppeared", err)
	}
}

func TestHandleIntakeSkipsClaimedNames(t *testing.T) {
	cfg := testConfig(t)
	p := testPipeline(t, cfg)

	path := filepath.Join(cfg.IntakeDir, "1.png")
	writeImagePNG(t, path, sheetImage(40, 40, 200, image.Rect(10, 10, 30, 30), 30))

	if err := p.HandleIntake(context.Background(), path); err != nil {
		t.Fatalf("HandleIntake: %v", err)
	}
	if got := listNames(t, cfg.IntakeDir); !reflect.DeepEqual(got, []string{"1.png"}) {
		t.Errorf("intake dir = %v, want [1.png] untouched", got)
	}
	if got := listNames(t, cfg.StagingDir); len(got) != 0 {
		t.Errorf("staging dir = %v, want empty", got)
	}
}

func TestHandleStagedSkipsOwnArtifacts(t *testing.T) {
	cfg := testConfig(t)
	cfg.SaveDebugArtifacts = true
	p := testPipeline(t, cfg)

	sheet := sheetImage(300, 300, 200, image.Rect(100, 100, 200, 200), 30)
	for _, name := range []string{"5_grayscale_bw.png", "5_grayscale_overlay.png"} {
		writeImagePNG(t, filepath.Join(cfg.StagingDir, name), sheet)
	}
	if err := os.WriteFile(filepath.Join(cfg.StagingDir, "5_grayscale_coords.txt"), []byte("149, 149\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	before := listNames(t, cfg.StagingDir)
	for _, name := range before {
		if err := p.HandleStaged(context.Background(), filepath.Join(cfg.StagingDir, name)); err != nil {
			t.Errorf("HandleStaged(%s) = %v, want nil", name, err)
		}
	}
	if after := listNames(t, cfg.StagingDir); !reflect.DeepEqual(after, before) {
		t.Errorf("artifact inputs changed the directory: %v -> %v", before, after)
	}
}

// startWatchLoop runs one watch loop until its context is cancelled. The
// sleep gives the loop time to register the directory before the test
// writes into it.
func startWatchLoop(t *testing.T, ctx context.Context, target watch.Target) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- watch.Loop(ctx, target, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()
	time.Sleep(100 * time.Millisecond)
	return done
}

func stopWatchLoop(t *testing.T, cancel context.CancelFunc, loops ...<-chan error) {
	t.Helper()
	cancel()
	for _, done := range loops {
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Loop returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Loop did not return after cancellation")
		}
	}
}

// moveInto renames a finished file into a watched directory, so the
// creation event always carries complete content.
func moveInto(t *testing.T, tmp, dst string) {
	t.Helper()
	if err := os.Rename(tmp, dst); err != nil {
		t.Fatalf("Rename: %v", err)
	}
}

func waitForPath(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, err := os.Stat(path); err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s never appeared", path)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func listNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir %s: %v", dir, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}

func TestIntakeLoopStagesOnce(t *testing.T) {
	cfg := testConfig(t)
	p := testPipeline(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := startWatchLoop(t, ctx, watch.Target{
		Dir:      cfg.IntakeDir,
		Debounce: cfg.Debounce,
		Handle:   p.HandleIntake,
	})

	tmp := filepath.Join(filepath.Dir(cfg.IntakeDir), "cap.png")
	writeImagePNG(t, tmp, sheetImage(300, 300, 200, image.Rect(100, 100, 200, 200), 30))
	moveInto(t, tmp, filepath.Join(cfg.IntakeDir, "cap.png"))

	waitForPath(t, filepath.Join(cfg.StagingDir, "1_grayscale.png"))
	// a wrongly re-dispatched rename would land during this window
	time.Sleep(500 * time.Millisecond)

	if got := listNames(t, cfg.IntakeDir); !reflect.DeepEqual(got, []string{"1.png"}) {
		t.Errorf("intake dir = %v, want [1.png]", got)
	}
	if got := listNames(t, cfg.StagingDir); !reflect.DeepEqual(got, []string{"1_grayscale.png"}) {
		t.Errorf("staging dir = %v, want [1_grayscale.png]", got)
	}
	stopWatchLoop(t, cancel, done)
}

func TestStagingLoopArtifactsSettle(t *testing.T) {
	cfg := testConfig(t)
	cfg.SaveDebugArtifacts = true
	p := testPipeline(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := startWatchLoop(t, ctx, watch.Target{
		Dir:      cfg.StagingDir,
		Debounce: cfg.Debounce,
		Match:    func(name string) bool { return strings.Contains(name, cfg.Marker) },
		Handle:   p.HandleStaged,
	})

	tmp := filepath.Join(filepath.Dir(cfg.StagingDir), "7_grayscale.png")
	writeImagePNG(t, tmp, sheetImage(300, 300, 200, image.Rect(100, 100, 200, 200), 30))
	moveInto(t, tmp, filepath.Join(cfg.StagingDir, "7_grayscale.png"))

	for _, name := range []string{"7_coords.txt", "7_grayscale_bw.png", "7_grayscale_overlay.png"} {
		waitForPath(t, filepath.Join(cfg.StagingDir, name))
	}
	// a wrongly re-dispatched mask or overlay would land during this window
	time.Sleep(500 * time.Millisecond)

	want := []string{"7_coords.txt", "7_grayscale.png", "7_grayscale_bw.png", "7_grayscale_overlay.png"}
	if got := listNames(t, cfg.StagingDir); !reflect.DeepEqual(got, want) {
		t.Errorf("staging dir = %v, want %v", got, want)
	}
	got, err := os.ReadFile(filepath.Join(cfg.StagingDir, "7_coords.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "149, 149\n" {
		t.Errorf("coordinates = %q, want %q", got, "149, 149\n")
	}
	stopWatchLoop(t, cancel, done)
}

func TestPipelineEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	cfg.SaveDebugArtifacts = true
	// the staged copy is grayscale-converted in place after it first
	// appears, so the staging watcher needs a debounce that outlasts the
	// rewrite
	cfg.Debounce = 150 * time.Millisecond
	p := testPipeline(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	intakeDone := startWatchLoop(t, ctx, watch.Target{
		Dir:      cfg.IntakeDir,
		Debounce: cfg.Debounce,
		Handle:   p.HandleIntake,
	})
	stagingDone := startWatchLoop(t, ctx, watch.Target{
		Dir:      cfg.StagingDir,
		Debounce: cfg.Debounce,
		Match:    func(name string) bool { return strings.Contains(name, cfg.Marker) },
		Handle:   p.HandleStaged,
	})

	tmp := filepath.Join(filepath.Dir(cfg.IntakeDir), "cap.png")
	writeImagePNG(t, tmp, sheetImage(300, 300, 200, image.Rect(100, 100, 200, 200), 30))
	moveInto(t, tmp, filepath.Join(cfg.IntakeDir, "cap.png"))

	for _, name := range []string{"1_coords.txt", "1_grayscale_overlay.png"} {
		waitForPath(t, filepath.Join(cfg.StagingDir, name))
	}
	time.Sleep(500 * time.Millisecond)

	if got := listNames(t, cfg.IntakeDir); !reflect.DeepEqual(got, []string{"1.png"}) {
		t.Errorf("intake dir = %v, want [1.png]", got)
	}
	want := []string{"1_coords.txt", "1_grayscale.png", "1_grayscale_bw.png", "1_grayscale_overlay.png"}
	if got := listNames(t, cfg.StagingDir); !reflect.DeepEqual(got, want) {
		t.Errorf("staging dir = %v, want %v", got, want)
	}
	got, err := os.ReadFile(filepath.Join(cfg.StagingDir, "1_coords.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "149, 149\n" {
		t.Errorf("coordinates = %q, want %q", got, "149, 149\n")
	}
	stopWatchLoop(t, cancel, intakeDone, stagingDone)
}
