package imaging

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/image/tiff"
)

// createTestImage creates a simple test image file and returns its path.
// The caller is responsible for removing the file.
func createTestImage(t *testing.T, width, height int, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	tmpFile, err := os.CreateTemp("", "test-image-*.png")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer tmpFile.Close()

	if err := png.Encode(tmpFile, img); err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("failed to encode image: %v", err)
	}

	return tmpFile.Name()
}

// createTestTIFF writes a 16-bit TIFF and returns its path.
func createTestTIFF(t *testing.T, width, height int) string {
	t.Helper()
	img := image.NewRGBA64(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA64(x, y, color.RGBA64{R: 0xffff, G: uint16(x * 256), B: 0, A: 0xffff})
		}
	}

	path := filepath.Join(t.TempDir(), "source.tif")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()
	if err := tiff.Encode(f, img, nil); err != nil {
		t.Fatalf("failed to encode tiff: %v", err)
	}
	return path
}

type recordingTracker struct {
	mu    sync.Mutex
	total int64
}

func (r *recordingTracker) TrackApp(delta int64) {
	r.mu.Lock()
	r.total += delta
	r.mu.Unlock()
}

func TestSourceCache_Load(t *testing.T) {
	cache := NewSourceCache(nil)
	imgPath := createTestImage(t, 100, 100, color.RGBA{255, 0, 0, 255})
	defer os.Remove(imgPath)

	img1, err := cache.Load(imgPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	bounds := img1.Bounds()
	if bounds.Dx() != 100 || bounds.Dy() != 100 {
		t.Errorf("unexpected dimensions: got %dx%d, want 100x100", bounds.Dx(), bounds.Dy())
	}

	// Second load should return cached image
	img2, err := cache.Load(imgPath)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if img1 != img2 {
		t.Error("second Load did not return cached image")
	}
	if cache.Len() != 1 {
		t.Errorf("Len: got %d, want 1", cache.Len())
	}
}

func TestSourceCache_LoadTIFF(t *testing.T) {
	cache := NewSourceCache(nil)
	path := createTestTIFF(t, 64, 32)

	info, err := LoadSourceInfo(cache, path)
	if err != nil {
		t.Fatalf("LoadSourceInfo failed: %v", err)
	}
	if info.Width != 64 || info.Height != 32 {
		t.Errorf("dimensions: got %dx%d, want 64x32", info.Width, info.Height)
	}
	if info.Format != "tiff" {
		t.Errorf("Format: got %s, want tiff", info.Format)
	}
	if info.ColorDepth != "16-bit" {
		t.Errorf("ColorDepth: got %s, want 16-bit", info.ColorDepth)
	}
}

func TestSourceCache_Load_Errors(t *testing.T) {
	cache := NewSourceCache(nil)
	if _, err := cache.Load("/nonexistent/path/to/image.png"); err == nil {
		t.Error("Load should fail for non-existent file")
	}

	tmpFile, err := os.CreateTemp("", "invalid-image-*.png")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.WriteString("not an image")
	tmpFile.Close()
	defer os.Remove(tmpFile.Name())

	if _, err := cache.Load(tmpFile.Name()); err == nil {
		t.Error("Load should fail for invalid image data")
	}
}

func TestSourceCache_TracksMemory(t *testing.T) {
	tracker := &recordingTracker{}
	cache := NewSourceCache(tracker)
	a := createTestImage(t, 10, 10, color.RGBA{0, 255, 0, 255})
	b := createTestImage(t, 20, 10, color.RGBA{0, 0, 255, 255})
	defer os.Remove(a)
	defer os.Remove(b)

	for _, p := range []string{a, b, a} {
		if _, err := cache.Load(p); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
	}
	if tracker.total != (100+200)*4 {
		t.Errorf("tracked %d bytes, want %d", tracker.total, (100+200)*4)
	}

	cache.Evict(a)
	if tracker.total != 200*4 {
		t.Errorf("after Evict tracked %d bytes, want %d", tracker.total, 200*4)
	}
	cache.Evict("/nonexistent/path")

	cache.Clear()
	if tracker.total != 0 {
		t.Errorf("after Clear tracked %d bytes, want 0", tracker.total)
	}
	if cache.Len() != 0 {
		t.Errorf("Clear did not empty cache: %d images remain", cache.Len())
	}
}

func TestSourceCache_ConcurrentAccess(t *testing.T) {
	tracker := &recordingTracker{}
	cache := NewSourceCache(tracker)
	imgPath := createTestImage(t, 50, 50, color.RGBA{128, 128, 128, 255})
	defer os.Remove(imgPath)

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Load(imgPath); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Load error: %v", err)
	}
	if tracker.total != 50*50*4 {
		t.Errorf("image accounted more than once: %d bytes", tracker.total)
	}
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path   string
		format string
	}{
		{"a.png", "png"},
		{"a.jpg", "jpeg"},
		{"a.JPEG", "jpeg"},
		{"a.tif", "tiff"},
		{"a.tiff", "tiff"},
		{"a.gif", "gif"},
		{"a.bmp", "bmp"},
		{"a.xyz", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := FormatOf(tt.path); got != tt.format {
				t.Errorf("FormatOf(%s): got %s, want %s", tt.path, got, tt.format)
			}
		})
	}
}

func TestLoadSourceInfo_NonExistent(t *testing.T) {
	cache := NewSourceCache(nil)
	if _, err := LoadSourceInfo(cache, "/nonexistent/image.png"); err == nil {
		t.Error("LoadSourceInfo should fail for non-existent file")
	}
}
