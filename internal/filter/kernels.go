package filter

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/blur"
	disimaging "github.com/disintegration/imaging"

	"github.com/ironsheep/image-pipeline/internal/cache"
	"github.com/ironsheep/image-pipeline/internal/imaging"
	"github.com/ironsheep/image-pipeline/internal/meta"
)

// ErrUnresolved is returned by hooks that find a required value unresolved.
var ErrUnresolved = errors.New("filter: unresolved input")

func channelData(t *cache.Tile) [][]byte {
	out := make([][]byte, len(t.Channels))
	for i, c := range t.Channels {
		out[i] = c.Data
	}
	return out
}

func passThrough(f *Filter, w *Work) error {
	if len(w.In.Channels) != len(w.Out.Channels) {
		return fmt.Errorf("%s: %d input channels for %d outputs", f, len(w.In.Channels), len(w.Out.Channels))
	}
	for i, c := range w.In.Channels {
		copy(w.Out.Channels[i].Data, c.Data)
	}
	return nil
}

// load

func (s *loadState) inputFixed(f *Filter) error {
	name := f.StringSetting("filename")
	if name == "" {
		w, h := f.IntSetting("width"), f.IntSetting("height")
		if s.img == nil || s.img.Bounds().Dx() != w || s.img.Bounds().Dy() != h {
			s.img = imaging.Gradient(w, h)
		}
	} else {
		img, err := s.sources.Load(name)
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		s.img = img
	}

	a := f.Arena()
	b := s.img.Bounds()
	a.Node(s.size).Value = meta.Dim{Width: b.Dx(), Height: b.Dy(), ScaleDownMax: scaleDownMax(b.Dx(), b.Dy())}
	a.Node(s.rotation).Value = meta.FlipRot(f.IntSetting("rotation"))
	ft := meta.FileTIFF
	if imaging.FormatOf(name) == "jpeg" {
		ft = meta.FileJPEG
	}
	a.Node(s.fileType).Value = ft
	return nil
}

func (s *loadState) render(f *Filter, w *Work) error {
	x0, y0, x1, y1 := w.Area.Normalized()
	region := imaging.ReadRegion(s.img, x0, y0, x1, y1, w.Area.Scale, w.Area.Width, w.Area.Height)
	planes := imaging.Planes(region, f.Output.Depth.Bytes())
	for i := range w.Out.Channels {
		copy(w.Out.Channels[i].Data, planes[i])
	}
	return nil
}

// convert

var spaces = map[meta.ColorSpace]imaging.Space{
	meta.ColorRGB: imaging.SpaceRGB,
	meta.ColorLAB: imaging.SpaceLAB,
	meta.ColorXYZ: imaging.SpaceXYZ,
}

func (s *convertState) tunesFixed(f *Filter, space, depth meta.ID) error {
	a := f.Arena()
	cs, ok := a.Node(space).Value.(meta.ColorSpace)
	if !ok {
		return fmt.Errorf("%w: %s space", ErrUnresolved, f)
	}
	d, ok := a.Node(depth).Value.(meta.BitDepth)
	if !ok {
		return fmt.Errorf("%w: %s depth", ErrUnresolved, f)
	}
	s.space, s.depth = spaces[cs], d
	return nil
}

func (s *convertState) render(f *Filter, w *Work) error {
	in, out := w.In.Channels, w.Out.Channels
	if len(in) < 3 || len(out) < 3 {
		return fmt.Errorf("%s: needs three channels", f)
	}
	inBps, outBps := f.Input.Depth.Bytes(), s.depth.Bytes()
	for i := 0; i < w.Area.Pixels(); i++ {
		r, g, b := imaging.ConvertSamples(s.space,
			imaging.Sample(in[0].Data, i, inBps),
			imaging.Sample(in[1].Data, i, inBps),
			imaging.Sample(in[2].Data, i, inBps))
		imaging.PutSample(out[0].Data, i, outBps, r)
		imaging.PutSample(out[1].Data, i, outBps, g)
		imaging.PutSample(out[2].Data, i, outBps, b)
	}
	return nil
}

// interleave

func (s *interleaveState) inputFixed(f *Filter) error {
	a := f.Arena()
	depth := ResolvedValue(a, s.depth)
	if depth == nil {
		return fmt.Errorf("%w: %s bit depth", ErrUnresolved, f)
	}
	a.Node(s.outDepth).Value = depth
	a.Node(s.outSize).Value = ResolvedValue(a, s.size)
	a.Node(s.outRot).Value = ResolvedValue(a, s.rotation)
	return nil
}

func interleaveWork(f *Filter, w *Work) error {
	if len(w.In.Channels) != 3 || len(w.Out.Channels) != 1 {
		return fmt.Errorf("%s: wants 3 planes in, 1 out", f)
	}
	copy(w.Out.Channels[0].Data, imaging.Interleave(channelData(w.In), f.Input.Depth.Bytes()))
	return nil
}

// fliprot

func (s *fliprotState) inputFixed(f *Filter) error {
	a := f.Arena()
	r, ok := ResolvedValue(a, s.rotation).(meta.FlipRot)
	if !ok {
		return fmt.Errorf("%w: %s orientation", ErrUnresolved, f)
	}
	size, ok := ResolvedValue(a, s.size).(meta.Dim)
	if !ok {
		return fmt.Errorf("%w: %s image size", ErrUnresolved, f)
	}
	if r >= 5 {
		size.Width, size.Height = size.Height, size.Width
	}
	a.Node(s.outSize).Value = size
	s.applied = r
	return nil
}

func (s *fliprotState) areaCalc(f *Filter, out cache.Area) cache.Area {
	w, h := f.Input.Size.Width>>out.Scale, f.Input.Size.Height>>out.Scale
	r := int(s.applied)
	ax, ay := imaging.OrientSource(r, out.X, out.Y, w, h)
	bx, by := imaging.OrientSource(r, out.X+out.Width-1, out.Y+out.Height-1, w, h)
	return cache.Area{
		X:      min(ax, bx),
		Y:      min(ay, by),
		Width:  max(ax, bx) - min(ax, bx) + 1,
		Height: max(ay, by) - min(ay, by) + 1,
		Scale:  out.Scale,
	}
}

func (s *fliprotState) render(f *Filter, w *Work) error {
	for i, c := range w.In.Channels {
		data, _, _ := imaging.OrientPlane(c.Data, w.In.Area.Width, w.In.Area.Height, c.BytesPerPixel, int(s.applied))
		copy(w.Out.Channels[i].Data, data)
	}
	return nil
}

// 8-bit RGB processing

// pixelOp transforms a decoded tile; scale is the tile's scale level.
type pixelOp func(f *Filter, img image.Image, scale int) image.Image

// marginFunc returns the border in pixels a kernel reads around its output.
type marginFunc func(f *Filter, scale int) int

func grow(margin marginFunc) func(*Filter, cache.Area) cache.Area {
	return func(f *Filter, out cache.Area) cache.Area {
		m := margin(f, out.Scale)
		return cache.Area{
			X:      out.X - m,
			Y:      out.Y - m,
			Width:  out.Width + 2*m,
			Height: out.Height + 2*m,
			Scale:  out.Scale,
		}
	}
}

func rgbWorker(op pixelOp) func(*Filter, *Work) error {
	return func(f *Filter, w *Work) error {
		in := w.In
		pix := w.Alloc(in.Area.Width * in.Area.Height * 4)
		defer w.Free(pix)
		img := &image.NRGBA{Pix: pix, Stride: in.Area.Width * 4, Rect: image.Rect(0, 0, in.Area.Width, in.Area.Height)}
		if err := imaging.FillFromPlanes(img, channelData(in), 1); err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		var res image.Image = op(f, img, w.Area.Scale)
		if in.Area != w.Area {
			dx, dy := w.Area.X-in.Area.X, w.Area.Y-in.Area.Y
			res = disimaging.Crop(res, image.Rect(dx, dy, dx+w.Area.Width, dy+w.Area.Height))
		}
		planes := imaging.Planes(res, 1)
		for i := range w.Out.Channels {
			copy(w.Out.Channels[i].Data, planes[i])
		}
		return nil
	}
}

func scaled(v float64, scale int) float64 {
	return v / float64(int(1)<<scale)
}

func contrastSettings(f *Filter) {
	f.AddSetting("contrast", 0.2, -1.0, 1.0, 0.01)
}

func contrastOp(f *Filter, img image.Image, _ int) image.Image {
	return adjust.Contrast(img, f.FloatSetting("contrast"))
}

func exposureSettings(f *Filter) {
	f.AddSetting("exposure", 0.0, -4.0, 4.0, 0.1)
}

func exposureOp(f *Filter, img image.Image, _ int) image.Image {
	mul := math.Pow(2, f.FloatSetting("exposure"))
	return adjust.Apply(img, func(c color.RGBA) color.RGBA {
		return color.RGBA{R: expose(c.R, mul), G: expose(c.G, mul), B: expose(c.B, mul), A: c.A}
	})
}

func expose(v uint8, mul float64) uint8 {
	return uint8(math.Min(255, math.Round(float64(v)*mul)))
}

func gaussSettings(f *Filter) {
	f.AddSetting("radius", 2.0, 0.0, 50.0, 0.1)
}

func gaussMargin(f *Filter, scale int) int {
	return int(math.Ceil(2*scaled(f.FloatSetting("radius"), scale))) + 1
}

func gaussOp(f *Filter, img image.Image, scale int) image.Image {
	r := scaled(f.FloatSetting("radius"), scale)
	if r <= 0 {
		return img
	}
	return blur.Gaussian(img, r)
}

func sharpenSettings(f *Filter) {
	f.AddSetting("sigma", 1.0, 0.1, 10.0, 0.1)
}

func sharpenMargin(f *Filter, scale int) int {
	return int(math.Ceil(3*scaled(f.FloatSetting("sigma"), scale))) + 1
}

func sharpenOp(f *Filter, img image.Image, scale int) image.Image {
	return disimaging.Sharpen(img, math.Max(0.1, scaled(f.FloatSetting("sigma"), scale)))
}
