package imaging

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
)

// MemoryTracker receives the byte size of decoded source images as they enter
// and leave a SourceCache. The tile cache implements it to account
// application-owned image memory.
type MemoryTracker interface {
	TrackApp(delta int64)
}

// SourceCache provides thread-safe caching of decoded source images so that
// every tile rendered from the same file shares one decode.
//
// The cache stores decoded image.Image objects keyed by their file path. Once an
// image is loaded, subsequent Load() calls for the same path return the cached
// copy without disk I/O.
//
// SourceCache is safe for concurrent use by multiple goroutines.
//
// # Memory Management
//
// Cached images remain in memory until explicitly removed via Evict() or Clear().
// When a MemoryTracker is attached, the estimated decoded size of each image is
// reported on load and withdrawn on eviction.
//
// # Example Usage
//
//	sources := imaging.NewSourceCache(tiles)
//	img, err := sources.Load("/path/to/image.tif")
//	if err != nil {
//	    return err
//	}
//	defer sources.Evict("/path/to/image.tif")
type SourceCache struct {
	mu      sync.RWMutex
	images  map[string]image.Image
	tracker MemoryTracker
}

// NewSourceCache creates an empty source cache. tracker may be nil.
func NewSourceCache(tracker MemoryTracker) *SourceCache {
	return &SourceCache{
		images:  make(map[string]image.Image),
		tracker: tracker,
	}
}

// Load retrieves an image from the cache or decodes it from disk if not cached.
//
// Parameters:
//   - path: Absolute or relative file path to the image. Supported formats are
//     TIFF, JPEG, PNG, GIF and BMP.
//
// Returns:
//   - image.Image: The decoded image.
//   - error: Non-nil if the file cannot be opened or decoded.
//
// The image is cached using the exact path string provided. Different paths to the
// same file (e.g., relative vs absolute) result in separate cache entries.
func (c *SourceCache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.images[path]; ok {
		return cached, nil
	}
	c.images[path] = img
	if c.tracker != nil {
		c.tracker.TrackApp(decodedSize(img))
	}
	return img, nil
}

// Clear removes all images from the cache.
func (c *SourceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tracker != nil {
		for _, img := range c.images {
			c.tracker.TrackApp(-decodedSize(img))
		}
	}
	c.images = make(map[string]image.Image)
}

// Evict removes a specific image from the cache by its path.
// If the path is not in the cache, this method does nothing.
func (c *SourceCache) Evict(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	img, ok := c.images[path]
	if !ok {
		return
	}
	delete(c.images, path)
	if c.tracker != nil {
		c.tracker.TrackApp(-decodedSize(img))
	}
}

// Len returns the number of cached images.
func (c *SourceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// decodedSize estimates the in-memory size of a decoded image.
func decodedSize(img image.Image) int64 {
	b := img.Bounds()
	px := int64(b.Dx()) * int64(b.Dy())
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64:
		return px * 8
	case *image.Gray16:
		return px * 2
	case *image.Gray, *image.Paletted:
		return px
	}
	return px * 4
}

// SourceInfo contains metadata about a loaded source image.
type SourceInfo struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is the detected container format: "tiff", "jpeg", "png", "gif",
	// "bmp" or "unknown". Detection is based on file extension, not file contents.
	Format string `json:"format"`

	// ColorDepth indicates the bit depth per channel: "8-bit" or "16-bit".
	ColorDepth string `json:"color_depth"`

	// FileSizeBytes is the size of the image file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// FormatOf maps a file extension to the container format name used in SourceInfo.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return "tiff"
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".png":
		return "png"
	case ".gif":
		return "gif"
	case ".bmp":
		return "bmp"
	}
	return "unknown"
}

// LoadSourceInfo loads an image and returns its metadata.
//
// This function loads the image into the cache (if not already cached) and
// extracts dimensions, format, color depth and file size.
//
// # Color Depth Detection
//
// Color depth is determined by the Go image type:
//   - *image.RGBA64, *image.NRGBA64, *image.Gray16 -> "16-bit"
//   - All other types -> "8-bit"
func LoadSourceInfo(cache *SourceCache, path string) (*SourceInfo, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	colorDepth := "8-bit"
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64, *image.Gray16:
		colorDepth = "16-bit"
	}

	bounds := img.Bounds()
	return &SourceInfo{
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		Format:        FormatOf(path),
		ColorDepth:    colorDepth,
		FileSizeBytes: stat.Size(),
	}, nil
}
