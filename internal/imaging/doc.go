// Package imaging provides the pixel-level helpers used by the pipeline stages.
//
// This package decodes source images, cuts and downsamples regions of them
// into tiles, converts between image.Image values and the planar channel
// buffers stored in tiles, converts colors between spaces, and encodes
// rendered tiles as PNG. The pixel kernels themselves come from
// github.com/disintegration/imaging, github.com/anthonynsimon/bild and
// github.com/lucasb-eyer/go-colorful.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For regions, (x0,y0) is inclusive (top-left), (x1,y1) is exclusive (bottom-right)
//
// Source coordinates are full-resolution pixels. A scale level s shows the
// image downsampled by 2^s.
//
// # Channel Buffers
//
// Tiles store one buffer per channel, rows top to bottom. Samples are one
// byte (8-bit) or two bytes big-endian (16-bit). Interleaved buffers hold RGB
// triplets.
//
// # Thread Safety
//
// The SourceCache type is safe for concurrent use. All other functions are
// stateless and can be called concurrently on different images.
//
// # Memory Accounting
//
// A SourceCache reports the decoded size of the images it holds to an
// optional MemoryTracker, which the tile cache uses as its application memory
// counter.
package imaging
