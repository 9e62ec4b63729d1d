package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// EncodedImage contains a base64 PNG rendering of an image.
type EncodedImage struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodePNG encodes img as a base64 PNG, optionally rescaled.
//
// A scale other than 1 (and greater than 0) resizes the image with a Lanczos
// filter before encoding; rendered tiles use it to enlarge low-resolution
// previews.
func EncodePNG(img image.Image, scale float64) (*EncodedImage, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("cannot encode empty image")
	}

	out := img
	if scale != 1.0 && scale > 0 {
		newWidth := max(1, int(float64(b.Dx())*scale))
		newHeight := max(1, int(float64(b.Dy())*scale))
		out = imaging.Resize(img, newWidth, newHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return &EncodedImage{
		Width:       out.Bounds().Dx(),
		Height:      out.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}
