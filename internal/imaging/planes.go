package imaging

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// ReadRegion extracts the rectangle (x0,y0)-(x1,y1) of a source image,
// downsampled by 2^scale, as a width x height image.
//
// Coordinates are full-resolution pixels. Parts of the rectangle outside the
// source bounds are transparent black, so tiles at the image border always
// have the requested size.
func ReadRegion(img image.Image, x0, y0, x1, y1, scale, width, height int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	want := image.Rect(x0, y0, x1, y1)
	have := want.Intersect(img.Bounds())
	if have.Empty() {
		return dst
	}

	part := imaging.Crop(img, have)
	if scale > 0 {
		w := max(1, have.Dx()>>scale)
		h := max(1, have.Dy()>>scale)
		part = imaging.Resize(part, w, h, imaging.Box)
	}
	offset := image.Pt((have.Min.X-x0)>>scale, (have.Min.Y-y0)>>scale)
	return imaging.Paste(dst, part, offset)
}

// Planes splits an image into planar R, G and B channel buffers with
// bytesPerSample bytes per sample (1 or 2, 16-bit samples big-endian).
func Planes(img image.Image, bytesPerSample int) [3][]byte {
	b := img.Bounds()
	n := b.Dx() * b.Dy() * bytesPerSample
	planes := [3][]byte{make([]byte, n), make([]byte, n), make([]byte, n)}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			putSample(planes[0], i, bytesPerSample, r)
			putSample(planes[1], i, bytesPerSample, g)
			putSample(planes[2], i, bytesPerSample, bl)
			i++
		}
	}
	return planes
}

// FromPlanes assembles an opaque 8-bit image from planar channel buffers.
// A single plane renders as gray; samples of 16 bits keep their high byte.
func FromPlanes(planes [][]byte, width, height, bytesPerSample int) (*image.NRGBA, error) {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	if err := FillFromPlanes(img, planes, bytesPerSample); err != nil {
		return nil, err
	}
	return img, nil
}

// FillFromPlanes is FromPlanes writing into img, whose bounds start at the
// origin and give the plane dimensions.
func FillFromPlanes(img *image.NRGBA, planes [][]byte, bytesPerSample int) error {
	if len(planes) != 1 && len(planes) != 3 {
		return fmt.Errorf("unsupported plane count %d", len(planes))
	}
	width, height := img.Rect.Dx(), img.Rect.Dy()
	if img.Stride != width*4 || len(img.Pix) < width*height*4 {
		return fmt.Errorf("image buffer does not hold %dx%d pixels", width, height)
	}
	need := width * height * bytesPerSample
	for i, p := range planes {
		if len(p) < need {
			return fmt.Errorf("plane %d holds %d bytes, need %d", i, len(p), need)
		}
	}

	for i := 0; i < width*height; i++ {
		off := i * bytesPerSample
		r := planes[0][off]
		g, b := r, r
		if len(planes) == 3 {
			g, b = planes[1][off], planes[2][off]
		}
		img.Pix[i*4+0] = r
		img.Pix[i*4+1] = g
		img.Pix[i*4+2] = b
		img.Pix[i*4+3] = 0xff
	}
	return nil
}

// Interleave packs three planes into one buffer of RGB triplets.
func Interleave(planes [][]byte, bytesPerSample int) []byte {
	n := len(planes[0]) / bytesPerSample
	out := make([]byte, 0, len(planes[0])*3)
	for i := 0; i < n; i++ {
		for _, p := range planes {
			out = append(out, p[i*bytesPerSample:(i+1)*bytesPerSample]...)
		}
	}
	return out
}

// Deinterleave splits a buffer of RGB triplets into three planes.
func Deinterleave(buf []byte, bytesPerSample int) [][]byte {
	n := len(buf) / (3 * bytesPerSample)
	planes := make([][]byte, 3)
	for c := range planes {
		planes[c] = make([]byte, 0, n*bytesPerSample)
	}
	for i := 0; i < n; i++ {
		for c := range planes {
			off := (i*3 + c) * bytesPerSample
			planes[c] = append(planes[c], buf[off:off+bytesPerSample]...)
		}
	}
	return planes
}

// Sample reads sample i of a plane as a 16-bit value.
func Sample(plane []byte, i, bytesPerSample int) uint16 {
	if bytesPerSample == 2 {
		return binary.BigEndian.Uint16(plane[i*2:])
	}
	v := uint16(plane[i])
	return v<<8 | v
}

// PutSample writes a 16-bit value as sample i of a plane.
func PutSample(plane []byte, i, bytesPerSample int, v uint16) {
	putSample(plane, i, bytesPerSample, uint32(v))
}

func putSample(plane []byte, i, bytesPerSample int, v uint32) {
	if bytesPerSample == 2 {
		binary.BigEndian.PutUint16(plane[i*2:], uint16(v))
		return
	}
	plane[i] = uint8(v >> 8)
}

// Gradient renders a deterministic test pattern of the given full-resolution
// size; it stands in for a source image when no file is configured.
func Gradient(fullWidth, fullHeight int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, fullWidth, fullHeight))
	for y := 0; y < fullHeight; y++ {
		for x := 0; x < fullWidth; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / max(1, fullWidth-1)),
				G: uint8(y * 255 / max(1, fullHeight-1)),
				B: uint8((x + y) % 256),
				A: 0xff,
			})
		}
	}
	return img
}

// OrientSource maps pixel (x, y) of an image produced by applying an EXIF
// orientation (1-8) back to the pixel it was read from. width and height are
// the dimensions of the unrotated source. Unknown orientations map to
// themselves.
func OrientSource(orientation, x, y, width, height int) (int, int) {
	switch orientation {
	case 2:
		return width - 1 - x, y
	case 3:
		return width - 1 - x, height - 1 - y
	case 4:
		return x, height - 1 - y
	case 5:
		return y, x
	case 6:
		return y, height - 1 - x
	case 7:
		return width - 1 - y, height - 1 - x
	case 8:
		return width - 1 - y, x
	}
	return x, y
}

// OrientPlane applies an EXIF orientation to one channel plane of
// width x height pixels and returns the new plane and its dimensions.
// Orientations 5-8 swap width and height.
func OrientPlane(src []byte, width, height, bytesPerPixel, orientation int) ([]byte, int, int) {
	outW, outH := width, height
	if orientation >= 5 && orientation <= 8 {
		outW, outH = height, width
	}
	dst := make([]byte, len(src))
	for y := 0; y < outH; y++ {
		for x := 0; x < outW; x++ {
			sx, sy := OrientSource(orientation, x, y, width, height)
			d := (y*outW + x) * bytesPerPixel
			s := (sy*width + sx) * bytesPerPixel
			copy(dst[d:d+bytesPerPixel], src[s:s+bytesPerPixel])
		}
	}
	return dst, outW, outH
}
