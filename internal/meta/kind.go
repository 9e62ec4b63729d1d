package meta

import "fmt"

// Kind is the attribute category a capability node describes.
type Kind int

// Capability kinds.
const (
	KindBundle Kind = iota
	KindChannel
	KindColorSpace
	KindBitDepth
	KindImageSize
	KindFlipRot
	KindFileType
	KindInt
	KindFloat
	KindString
)

// Value is the concrete payload of a node. The dynamic type depends on the Kind:
//   - KindChannel: int (1-based channel index)
//   - KindColorSpace: ColorSpace
//   - KindBitDepth: BitDepth
//   - KindImageSize: Dim
//   - KindFlipRot: FlipRot
//   - KindFileType: FileType
//   - KindInt: int, KindFloat: float64, KindString: string
//
// KindBundle nodes carry no value.
type Value any

// ColorSpace tags the color model of a channel bundle.
type ColorSpace int

// Color spaces.
const (
	ColorRGB ColorSpace = iota + 1
	ColorLAB
	ColorXYZ
	ColorInterleavedRGB
)

var colorSpaceNames = map[ColorSpace]string{
	ColorRGB:            "RGB",
	ColorLAB:            "LAB",
	ColorXYZ:            "XYZ",
	ColorInterleavedRGB: "RGBi",
}

func (c ColorSpace) String() string {
	if s, ok := colorSpaceNames[c]; ok {
		return s
	}
	return fmt.Sprintf("ColorSpace(%d)", int(c))
}

// BitDepth is the storage depth of one sample.
type BitDepth int

// Bit depths.
const (
	BitDepthU8  BitDepth = 8
	BitDepthU16 BitDepth = 16
)

// Bytes returns the number of bytes used to store one sample.
func (b BitDepth) Bytes() int {
	return int(b) / 8
}

func (b BitDepth) String() string {
	return fmt.Sprintf("U%d", int(b))
}

// Dim is the full-resolution geometry of an image.
type Dim struct {
	Width        int
	Height       int
	ScaleDownMax int
}

func (d Dim) String() string {
	return fmt.Sprintf("%dx%d/%d", d.Width, d.Height, d.ScaleDownMax)
}

// FlipRot is an EXIF-style orientation (1 = upright, 6 = rotated 90° clockwise,
// 8 = rotated 90° counter-clockwise, 2-4 and 5-7 the mirrored variants).
type FlipRot int

// Orientation values used by the built-in filters.
const (
	FlipRotNone FlipRot = 1
	FlipRotCW   FlipRot = 6
	FlipRotCCW  FlipRot = 8
)

// FileType tags whether data is still encoded in a container format.
type FileType int

// File types.
const (
	FileRaw FileType = iota + 1
	FileTIFF
	FileJPEG
)

var fileTypeNames = map[FileType]string{
	FileRaw:  "raw",
	FileTIFF: "tiff",
	FileJPEG: "jpeg",
}

func (f FileType) String() string {
	if s, ok := fileTypeNames[f]; ok {
		return s
	}
	return fmt.Sprintf("FileType(%d)", int(f))
}

// kindDef holds the per-kind behavior table.
type kindDef struct {
	name  string
	equal func(a, b Value) bool
}

func equalComparable[T comparable](a, b Value) bool {
	av, ok := a.(T)
	if !ok {
		return false
	}
	bv, ok := b.(T)
	if !ok {
		return false
	}
	return av == bv
}

var kindDefs = [...]kindDef{
	KindBundle:     {name: "bundle", equal: func(a, b Value) bool { return true }},
	KindChannel:    {name: "channel", equal: equalComparable[int]},
	KindColorSpace: {name: "colorspace", equal: equalComparable[ColorSpace]},
	KindBitDepth:   {name: "bitdepth", equal: equalComparable[BitDepth]},
	KindImageSize:  {name: "imagesize", equal: equalComparable[Dim]},
	KindFlipRot:    {name: "fliprot", equal: equalComparable[FlipRot]},
	KindFileType:   {name: "filetype", equal: equalComparable[FileType]},
	KindInt:        {name: "int", equal: equalComparable[int]},
	KindFloat:      {name: "float", equal: equalComparable[float64]},
	KindString:     {name: "string", equal: equalComparable[string]},
}

func (k Kind) valid() bool {
	return k >= 0 && int(k) < len(kindDefs)
}

func (k Kind) String() string {
	if !k.valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindDefs[k].name
}

// Equal compares two values under the comparison of kind k.
// Values of the wrong dynamic type never compare equal.
func (k Kind) Equal(a, b Value) bool {
	if !k.valid() || a == nil || b == nil {
		return false
	}
	return kindDefs[k].equal(a, b)
}

// Contains reports whether v is a member of set under the comparison of kind k.
func (k Kind) Contains(set []Value, v Value) bool {
	for _, s := range set {
		if k.Equal(s, v) {
			return true
		}
	}
	return false
}

// Intersects reports whether two candidate sets share at least one value.
func (k Kind) Intersects(a, b []Value) bool {
	for _, av := range a {
		if k.Contains(b, av) {
			return true
		}
	}
	return false
}
