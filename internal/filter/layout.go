package filter

import (
	"fmt"

	"github.com/ironsheep/image-pipeline/internal/meta"
)

// Layout is the resolved pixel format flowing across one side of a stage.
type Layout struct {
	Channels int
	Depth    meta.BitDepth
	Space    meta.ColorSpace
	Size     meta.Dim
	Rotation meta.FlipRot
}

// Interleaved reports whether the single channel holds RGB triplets.
func (l Layout) Interleaved() bool {
	return l.Space == meta.ColorInterleavedRGB
}

// BytesPerPixel returns the size of one pixel of one channel plane.
func (l Layout) BytesPerPixel() int {
	n := l.Depth.Bytes()
	if l.Interleaved() {
		n *= 3
	}
	return n
}

func (l Layout) String() string {
	return fmt.Sprintf("%dx%s %s %s rot=%d", l.Channels, l.Depth, l.Space, l.Size, int(l.Rotation))
}

// ResolvedValue returns the concrete value of a node: its own value, or the
// value derived from its pinned tuning. It is nil while unresolved.
func ResolvedValue(a *meta.Arena, id meta.ID) meta.Value {
	n := a.Node(id)
	if n.Value != nil || n.DependsOn == meta.None {
		return n.Value
	}
	anchor := a.Node(n.DependsOn)
	if anchor == nil || anchor.Value == nil {
		return nil
	}
	return a.ResolvedValue(id, anchor.Value)
}

// LayoutOf reads the layout described by the capability tree below root.
// The first node of each kind wins; channels are counted.
func LayoutOf(a *meta.Arena, root meta.ID) Layout {
	var l Layout
	a.Walk(root, func(id meta.ID, n *meta.Node) bool {
		v := ResolvedValue(a, id)
		switch n.Kind {
		case meta.KindChannel:
			l.Channels++
		case meta.KindBitDepth:
			if d, ok := v.(meta.BitDepth); ok && l.Depth == 0 {
				l.Depth = d
			}
		case meta.KindColorSpace:
			if c, ok := v.(meta.ColorSpace); ok && l.Space == 0 {
				l.Space = c
			}
		case meta.KindImageSize:
			if d, ok := v.(meta.Dim); ok && l.Size.Width == 0 {
				l.Size = d
			}
		case meta.KindFlipRot:
			if r, ok := v.(meta.FlipRot); ok && l.Rotation == 0 {
				l.Rotation = r
			}
		}
		return true
	})
	if l.Depth == 0 {
		l.Depth = meta.BitDepthU8
	}
	return l
}
