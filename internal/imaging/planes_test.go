package imaging

import (
	"bytes"
	"image"
	"image/color"
	"testing"
)

func TestReadRegion(t *testing.T) {
	img := createPatternImage(100, 100)

	// full resolution, fully inside
	out := ReadRegion(img, 40, 40, 60, 60, 0, 20, 20)
	if got := out.NRGBAAt(0, 0); got != (color.NRGBA{255, 0, 0, 255}) {
		t.Errorf("top-left: got %v, want red", got)
	}
	if got := out.NRGBAAt(19, 19); got != (color.NRGBA{255, 255, 255, 255}) {
		t.Errorf("bottom-right: got %v, want white", got)
	}

	// half resolution: 100px source region becomes 50px
	out = ReadRegion(img, 0, 0, 100, 100, 1, 50, 50)
	if out.Bounds().Dx() != 50 {
		t.Errorf("width: got %d, want 50", out.Bounds().Dx())
	}
	if got := out.NRGBAAt(40, 5); got != (color.NRGBA{0, 255, 0, 255}) {
		t.Errorf("scaled top-right: got %v, want green", got)
	}

	// partially outside: the remainder stays transparent
	out = ReadRegion(img, 90, 90, 110, 110, 0, 20, 20)
	if got := out.NRGBAAt(15, 15); got.A != 0 {
		t.Errorf("outside pixel: got %v, want transparent", got)
	}
	if got := out.NRGBAAt(5, 5); got != (color.NRGBA{255, 255, 255, 255}) {
		t.Errorf("inside pixel: got %v, want white", got)
	}

	// entirely outside
	out = ReadRegion(img, 200, 200, 210, 210, 0, 10, 10)
	if got := out.NRGBAAt(0, 0); got.A != 0 {
		t.Errorf("outside region: got %v, want transparent", got)
	}
}

func TestPlanesRoundTrip(t *testing.T) {
	img := createPatternImage(8, 8)

	for _, bps := range []int{1, 2} {
		planes := Planes(img, bps)
		if len(planes[0]) != 64*bps {
			t.Fatalf("plane size: got %d, want %d", len(planes[0]), 64*bps)
		}
		back, err := FromPlanes(planes[:], 8, 8, bps)
		if err != nil {
			t.Fatalf("FromPlanes failed: %v", err)
		}
		for _, pt := range []image.Point{{0, 0}, {7, 0}, {0, 7}, {7, 7}} {
			want := color.NRGBAModel.Convert(img.At(pt.X, pt.Y))
			if got := back.At(pt.X, pt.Y); got != want {
				t.Errorf("%d bytes, pixel %v: got %v, want %v", bps, pt, got, want)
			}
		}
	}
}

func TestFromPlanes_Errors(t *testing.T) {
	if _, err := FromPlanes(make([][]byte, 2), 1, 1, 1); err == nil {
		t.Error("FromPlanes should reject two planes")
	}
	if _, err := FromPlanes([][]byte{make([]byte, 3)}, 2, 2, 1); err == nil {
		t.Error("FromPlanes should reject short planes")
	}
	gray, err := FromPlanes([][]byte{{10, 20, 30, 40}}, 2, 2, 1)
	if err != nil {
		t.Fatalf("FromPlanes failed: %v", err)
	}
	if got := gray.NRGBAAt(1, 1); got != (color.NRGBA{40, 40, 40, 255}) {
		t.Errorf("gray pixel: got %v", got)
	}
}

func TestFillFromPlanes(t *testing.T) {
	img := &image.NRGBA{Pix: make([]byte, 2*2*4), Stride: 8, Rect: image.Rect(0, 0, 2, 2)}
	if err := FillFromPlanes(img, [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}, {9, 10, 11, 12}}, 1); err != nil {
		t.Fatalf("FillFromPlanes failed: %v", err)
	}
	if got := img.NRGBAAt(0, 1); got != (color.NRGBA{3, 7, 11, 255}) {
		t.Errorf("pixel (0,1): got %v", got)
	}

	short := &image.NRGBA{Pix: make([]byte, 4), Stride: 8, Rect: image.Rect(0, 0, 2, 2)}
	if err := FillFromPlanes(short, [][]byte{{1, 2, 3, 4}}, 1); err == nil {
		t.Error("FillFromPlanes should reject a buffer smaller than its bounds")
	}
}

func TestInterleaveRoundTrip(t *testing.T) {
	planes := [][]byte{{1, 2}, {3, 4}, {5, 6}}
	buf := Interleave(planes, 1)
	if !bytes.Equal(buf, []byte{1, 3, 5, 2, 4, 6}) {
		t.Fatalf("Interleave: got %v", buf)
	}
	back := Deinterleave(buf, 1)
	for i := range planes {
		if !bytes.Equal(back[i], planes[i]) {
			t.Errorf("plane %d: got %v, want %v", i, back[i], planes[i])
		}
	}

	wide := [][]byte{{0, 1}, {0, 2}, {0, 3}}
	if got := Deinterleave(Interleave(wide, 2), 2); !bytes.Equal(got[2], []byte{0, 3}) {
		t.Errorf("16-bit round trip: got %v", got)
	}
}

func TestSamples(t *testing.T) {
	p8 := make([]byte, 2)
	PutSample(p8, 1, 1, 0xabcd)
	if p8[1] != 0xab {
		t.Errorf("8-bit PutSample: got %#x", p8[1])
	}
	if got := Sample(p8, 1, 1); got != 0xabab {
		t.Errorf("8-bit Sample: got %#x", got)
	}

	p16 := make([]byte, 4)
	PutSample(p16, 1, 2, 0xabcd)
	if got := Sample(p16, 1, 2); got != 0xabcd {
		t.Errorf("16-bit Sample: got %#x", got)
	}
}

func TestGradient(t *testing.T) {
	img := Gradient(256, 16)
	if img.Bounds().Dx() != 256 || img.Bounds().Dy() != 16 {
		t.Fatalf("bounds: got %v", img.Bounds())
	}
	r, _, _, _ := img.At(255, 0).RGBA()
	if r>>8 != 255 {
		t.Errorf("right edge red: got %d, want 255", r>>8)
	}
}

func TestOrientPlane(t *testing.T) {
	// 4x2 plane, marker in the top-left pixel
	src := make([]byte, 8)
	src[0] = 9

	tests := []struct {
		orientation int
		w, h        int
		markX       int
		markY       int
	}{
		{1, 4, 2, 0, 0},
		{2, 4, 2, 3, 0},
		{3, 4, 2, 3, 1},
		{4, 4, 2, 0, 1},
		{5, 2, 4, 0, 0},
		{6, 2, 4, 1, 0},
		{7, 2, 4, 1, 3},
		{8, 2, 4, 0, 3},
	}
	for _, tt := range tests {
		out, w, h := OrientPlane(src, 4, 2, 1, tt.orientation)
		if w != tt.w || h != tt.h {
			t.Errorf("orientation %d: got %dx%d, want %dx%d", tt.orientation, w, h, tt.w, tt.h)
			continue
		}
		if out[tt.markY*w+tt.markX] != 9 {
			t.Errorf("orientation %d: marker not at (%d,%d): %v", tt.orientation, tt.markX, tt.markY, out)
		}
	}
}

func TestOrientPlane_WidePixels(t *testing.T) {
	// 2x1 plane of 16-bit samples rotated clockwise becomes 1x2
	src := []byte{0x12, 0x34, 0x56, 0x78}
	out, w, h := OrientPlane(src, 2, 1, 2, 6)
	if w != 1 || h != 2 {
		t.Fatalf("dimensions: got %dx%d, want 1x2", w, h)
	}
	if !bytes.Equal(out, src) {
		t.Errorf("got %v, want %v", out, src)
	}
}
