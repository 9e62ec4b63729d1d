package filter

import (
	"image"

	"github.com/ironsheep/image-pipeline/internal/cache"
	"github.com/ironsheep/image-pipeline/internal/imaging"
	"github.com/ironsheep/image-pipeline/internal/meta"
)

// DefaultAdapters is the automatic insertion catalog in trial order.
var DefaultAdapters = []string{"interleave", "loadjpeg", "convert", "loadtiff", "fliprot"}

// Options configures the built-in catalog.
type Options struct {
	// Sources decodes and caches source files for load filters. A private
	// cache is created when nil.
	Sources *imaging.SourceCache
}

// Builtin returns a registry holding the built-in filters with the default
// adapter catalog.
func Builtin(opts Options) *Registry {
	sources := opts.Sources
	if sources == nil {
		sources = imaging.NewSourceCache(nil)
	}

	r := NewRegistry()
	for _, c := range []*Core{
		loadCore(sources),
		decodeCore("loadtiff", "TIFF decoder", meta.FileTIFF),
		decodeCore("loadjpeg", "JPEG decoder", meta.FileJPEG),
		convertCore(),
		interleaveCore(),
		fliprotCore(),
		pretendCore(),
		rgbCore("contrast", "Contrast", "Adjusts contrast around mid gray", contrastSettings, contrastOp, nil),
		rgbCore("exposure", "Exposure", "Scales intensities by 2^exposure", exposureSettings, exposureOp, nil),
		rgbCore("gauss", "Gaussian blur", "Blurs with a Gaussian kernel", gaussSettings, gaussOp, gaussMargin),
		rgbCore("sharpen", "Sharpen", "Unsharp-mask sharpening", sharpenSettings, sharpenOp, sharpenMargin),
		memsinkCore(),
	} {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
	if err := r.SetAdapters(DefaultAdapters...); err != nil {
		panic(err)
	}
	return r
}

// rgbInput declares the planar 8-bit RGB requirement shared by the
// processing filters.
func (f *Filter) rgbInput() meta.ID {
	return f.bundle(
		f.value(meta.KindFileType, meta.FileRaw),
		f.value(meta.KindColorSpace, meta.ColorRGB),
		f.channel(1, f.value(meta.KindBitDepth, meta.BitDepthU8)),
		f.channel(2, f.value(meta.KindBitDepth, meta.BitDepthU8)),
		f.channel(3, f.value(meta.KindBitDepth, meta.BitDepthU8)),
	)
}

type loadState struct {
	sources  *imaging.SourceCache
	img      image.Image
	fileType meta.ID
	size     meta.ID
	rotation meta.ID
}

func loadCore(sources *imaging.SourceCache) *Core {
	return &Core{
		Name:        "Load",
		ShortName:   "load",
		Description: "Reads a TIFF or JPEG source; an empty filename renders a test gradient",
		Build: func(f *Filter) {
			f.AddSetting("filename", "", nil, nil, nil)
			f.AddSetting("rotation", 1, 1, 8, 1)
			f.AddSetting("width", 1024, 1, 1<<16, 1)
			f.AddSetting("height", 768, 1, 1<<16, 1)

			s := &loadState{
				sources:  sources,
				fileType: f.open(meta.KindFileType),
				size:     f.open(meta.KindImageSize),
				rotation: f.open(meta.KindFlipRot),
			}
			f.Out = f.bundle(
				s.fileType,
				f.value(meta.KindColorSpace, meta.ColorRGB),
				s.size,
				s.rotation,
				f.channel(1, f.value(meta.KindBitDepth, meta.BitDepthU16)),
				f.channel(2, f.value(meta.KindBitDepth, meta.BitDepthU16)),
				f.channel(3, f.value(meta.KindBitDepth, meta.BitDepthU16)),
			)
			f.Data = s
			f.InputFixed = s.inputFixed
			f.Worker = s.render
		},
	}
}

// decodeCore declares a codec adapter turning data tagged with ft into raw data.
func decodeCore(name, title string, ft meta.FileType) *Core {
	return &Core{
		Name:        title,
		ShortName:   name,
		Description: "Decodes " + ft.String() + " tagged data",
		Build: func(f *Filter) {
			raw := f.value(meta.KindFileType, meta.FileRaw)
			f.In = f.bundle(f.replace(f.value(meta.KindFileType, ft), raw))
			f.Out = f.bundle(raw)
			f.Worker = passThrough
		},
	}
}

type convertState struct {
	space imaging.Space
	depth meta.BitDepth
}

func convertCore() *Core {
	return &Core{
		Name:        "Convert",
		ShortName:   "convert",
		Description: "Converts bit depth and color space",
		Build: func(f *Filter) {
			space := f.tune(meta.KindColorSpace, "space", meta.ColorRGB, meta.ColorLAB, meta.ColorXYZ)
			depth := f.tune(meta.KindBitDepth, "depth", meta.BitDepthU16, meta.BitDepthU8)

			spaceOut := f.dependent(meta.KindColorSpace, space)
			depthOut := f.dependent(meta.KindBitDepth, depth)
			ch := func(i int) meta.ID {
				return f.channel(i, f.replace(f.choice(meta.KindBitDepth, meta.BitDepthU8, meta.BitDepthU16), depthOut))
			}
			f.In = f.bundle(
				f.value(meta.KindFileType, meta.FileRaw),
				f.replace(f.choice(meta.KindColorSpace, meta.ColorRGB), spaceOut),
				ch(1), ch(2), ch(3),
			)
			f.Out = f.bundle(spaceOut, depthOut)

			s := &convertState{}
			f.Data = s
			f.TunesFixed = func(f *Filter) error {
				return s.tunesFixed(f, space, depth)
			}
			f.Worker = s.render
		},
	}
}

type interleaveState struct {
	size     meta.ID
	rotation meta.ID
	depth    meta.ID
	outSize  meta.ID
	outRot   meta.ID
	outDepth meta.ID
}

func interleaveCore() *Core {
	return &Core{
		Name:        "Interleave",
		ShortName:   "interleave",
		Description: "Packs planar RGB into one interleaved channel",
		Build: func(f *Filter) {
			s := &interleaveState{
				size:     f.optional(f.open(meta.KindImageSize)),
				rotation: f.optional(f.open(meta.KindFlipRot)),
				depth:    f.open(meta.KindBitDepth),
				outSize:  f.open(meta.KindImageSize),
				outRot:   f.open(meta.KindFlipRot),
				outDepth: f.open(meta.KindBitDepth),
			}
			out := f.bundle(
				f.value(meta.KindFileType, meta.FileRaw),
				f.value(meta.KindColorSpace, meta.ColorInterleavedRGB),
				s.outSize,
				s.outRot,
				f.channel(1, s.outDepth),
			)
			f.In = f.replace(f.bundle(
				f.value(meta.KindFileType, meta.FileRaw),
				f.value(meta.KindColorSpace, meta.ColorRGB),
				s.size,
				s.rotation,
				f.channel(1, s.depth),
				f.channel(2, f.open(meta.KindBitDepth)),
				f.channel(3, f.open(meta.KindBitDepth)),
			), out)
			f.Out = out
			f.Data = s
			f.InputFixed = s.inputFixed
			f.Worker = interleaveWork
		},
	}
}

type fliprotState struct {
	rotation meta.ID
	size     meta.ID
	outSize  meta.ID
	applied  meta.FlipRot
}

func fliprotCore() *Core {
	return &Core{
		Name:        "Flip/Rotate",
		ShortName:   "fliprot",
		Description: "Applies the image orientation so the output is upright",
		Build: func(f *Filter) {
			s := &fliprotState{
				rotation: f.open(meta.KindFlipRot),
				size:     f.open(meta.KindImageSize),
				outSize:  f.open(meta.KindImageSize),
			}
			upright := f.value(meta.KindFlipRot, meta.FlipRotNone)
			f.In = f.bundle(f.replace(s.rotation, upright), f.replace(s.size, s.outSize))
			f.Out = f.bundle(upright, s.outSize)
			f.Data = s
			f.InputFixed = s.inputFixed
			f.AreaCalc = s.areaCalc
			f.Worker = s.render
		},
	}
}

func pretendCore() *Core {
	return &Core{
		Name:        "Pretend Orientation",
		ShortName:   "pretend",
		Description: "Overrides the orientation tag without touching pixels",
		Build: func(f *Filter) {
			f.AddSetting("rotation", 1, 1, 8, 1)
			tag := f.open(meta.KindFlipRot)
			f.In = f.bundle(f.replace(f.open(meta.KindFlipRot), tag))
			f.Out = f.bundle(tag)
			f.InputFixed = func(f *Filter) error {
				f.Arena().Node(tag).Value = meta.FlipRot(f.IntSetting("rotation"))
				return nil
			}
			f.Worker = passThrough
		},
	}
}

// rgbCore declares an 8-bit RGB processing filter whose output format equals
// its input format.
func rgbCore(name, title, desc string, settings func(f *Filter), op pixelOp, margin marginFunc) *Core {
	return &Core{
		Name:        title,
		ShortName:   name,
		Description: desc,
		Build: func(f *Filter) {
			settings(f)
			f.In = f.rgbInput()
			f.Out = f.bundle()
			if margin != nil {
				f.AreaCalc = grow(margin)
			}
			f.Worker = rgbWorker(op)
		},
	}
}

func memsinkCore() *Core {
	return &Core{
		Name:        "Memory Sink",
		ShortName:   "memsink",
		Description: "Terminates a chain; rendered tiles are returned to the caller",
		Build: func(f *Filter) {
			f.In = f.bundle(f.value(meta.KindFlipRot, meta.FlipRotNone))
			f.Worker = passThrough
		},
	}
}

func scaleDownMax(width, height int) int {
	s := 0
	for max(width, height)>>s > cache.TileSize {
		s++
	}
	return s
}
