package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ironsheep/image-pipeline/internal/cache"
	"github.com/ironsheep/image-pipeline/internal/meta"
)

var (
	// ErrUnknownSetting is returned for a setting name the filter does not declare.
	ErrUnknownSetting = errors.New("filter: unknown setting")

	// ErrSettingType is returned when a value does not fit the setting's kind.
	ErrSettingType = errors.New("filter: unsupported setting type")

	// ErrSettingRange is returned when a value lies outside the setting's bounds.
	ErrSettingRange = errors.New("filter: setting out of range")
)

// ID identifies a filter inside a Graph.
type ID int

// Core is the named constructor of a filter kind.
type Core struct {
	Name        string
	ShortName   string
	Description string

	// Build declares the filter's capability trees, settings and hooks.
	Build func(f *Filter)
}

// Scratch hands out temporary worker buffers. The tile cache implements it
// to account them as buffer memory.
type Scratch interface {
	BufferAlloc(n int) []byte
	BufferFree(b []byte)
}

// Work is one unit of rendering handed to a filter's Worker.
type Work struct {
	Area cache.Area

	// In is the input tile, nil for source filters.
	In *cache.Tile
	// Out arrives with channels allocated for the filter's output layout.
	Out *cache.Tile

	WorkerID int

	// Scratch supplies temporary buffers; plain allocations are used when nil.
	Scratch Scratch
}

// Alloc returns a zeroed scratch buffer of n bytes. Release it with Free.
func (w *Work) Alloc(n int) []byte {
	if w.Scratch == nil {
		return make([]byte, n)
	}
	return w.Scratch.BufferAlloc(n)
}

// Free releases a buffer obtained from Alloc.
func (w *Work) Free(b []byte) {
	if w.Scratch != nil {
		w.Scratch.BufferFree(b)
	}
}

// Filter is one pipeline stage.
type Filter struct {
	ID   ID
	Core *Core

	// In is the requirement tree, None for sources.
	In meta.ID
	// Out is the capability tree, None for sinks.
	Out meta.ID

	Tunes    []meta.ID
	Settings []meta.ID

	// Inserted marks an adapter created by automatic insertion.
	Inserted bool

	// Hash identifies the configured stage. It is valid while the owning
	// chain is configured.
	Hash uint64

	// Input and Output describe the resolved data layout on both sides of
	// the stage. They are valid while the owning chain is configured.
	Input  Layout
	Output Layout

	// InputFixed runs once the input of the filter is matched, before its
	// output tree is derived. An error fails the edge.
	InputFixed func(f *Filter) error
	// TunesFixed runs after every tuning of the chain is pinned.
	TunesFixed func(f *Filter) error
	// AreaCalc maps an output area to the input area it is computed from.
	// Filters without AreaCalc read the area they write.
	AreaCalc func(f *Filter, out cache.Area) cache.Area
	// Worker renders one tile.
	Worker func(f *Filter, w *Work) error

	// Data holds kernel state.
	Data any

	arena    *meta.Arena
	defaults map[string]meta.Value
}

// Arena returns the arena holding the filter's trees.
func (f *Filter) Arena() *meta.Arena {
	return f.arena
}

// Sink reports whether the filter has no output.
func (f *Filter) Sink() bool {
	return f.Out == meta.None
}

// Source reports whether the filter has no input.
func (f *Filter) Source() bool {
	return f.In == meta.None
}

func (f *Filter) String() string {
	return fmt.Sprintf("%s#%d", f.Core.ShortName, f.ID)
}

// ownedNodes returns every node declared by the filter, including output
// replacements that are not part of Out.
func (f *Filter) ownedNodes() []meta.ID {
	seen := make(map[meta.ID]bool)
	var out []meta.ID
	collect := func(root meta.ID) {
		for _, id := range f.arena.Collect(root) {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}

	roots := []meta.ID{f.In, f.Out}
	roots = append(roots, f.Tunes...)
	roots = append(roots, f.Settings...)
	for _, r := range roots {
		collect(r)
	}
	f.arena.Walk(f.In, func(_ meta.ID, n *meta.Node) bool {
		if n.ReplacedBy != meta.None {
			collect(n.ReplacedBy)
		}
		return true
	})
	return out
}

// node helpers used by filter constructors

func (f *Filter) open(kind meta.Kind) meta.ID {
	return f.arena.New(kind, int(f.ID))
}

func (f *Filter) value(kind meta.Kind, v meta.Value) meta.ID {
	return f.arena.NewValue(kind, int(f.ID), v)
}

func (f *Filter) choice(kind meta.Kind, values ...meta.Value) meta.ID {
	return f.arena.NewSelect(kind, int(f.ID), values...)
}

// tune declares a tuning and returns its handle.
func (f *Filter) tune(kind meta.Kind, name string, values ...meta.Value) meta.ID {
	id := f.arena.NewTune(kind, int(f.ID), values...)
	f.arena.Node(id).Name = name
	f.Tunes = append(f.Tunes, id)
	return id
}

// dependent returns an unresolved node computing its value from tune.
func (f *Filter) dependent(kind meta.Kind, tune meta.ID) meta.ID {
	id := f.open(kind)
	f.arena.Node(id).DependsOn = tune
	return id
}

func (f *Filter) optional(id meta.ID) meta.ID {
	f.arena.Node(id).Optional = true
	return id
}

func (f *Filter) bundle(children ...meta.ID) meta.ID {
	id := f.open(meta.KindBundle)
	for _, c := range children {
		f.arena.Attach(id, c)
	}
	return id
}

func (f *Filter) channel(index int, children ...meta.ID) meta.ID {
	id := f.arena.NewChannel(int(f.ID), index)
	for _, c := range children {
		f.arena.Attach(id, c)
	}
	return id
}

func (f *Filter) replace(id, by meta.ID) meta.ID {
	f.arena.SetReplacedBy(id, by)
	return id
}

func kindOf(v meta.Value) (meta.Kind, bool) {
	switch v.(type) {
	case int:
		return meta.KindInt, true
	case float64:
		return meta.KindFloat, true
	case string:
		return meta.KindString, true
	}
	return 0, false
}

// AddSetting declares a named setting holding v. Non-nil bounds are attached
// as "min", "max" and "step" children.
func (f *Filter) AddSetting(name string, v, min, max, step meta.Value) meta.ID {
	kind, ok := kindOf(v)
	if !ok {
		panic(fmt.Sprintf("filter %s: setting %s has unsupported type %T", f.Core.ShortName, name, v))
	}
	id := f.value(kind, v)
	f.arena.Node(id).Name = name
	for _, b := range []struct {
		name string
		v    meta.Value
	}{{"min", min}, {"max", max}, {"step", step}} {
		if b.v == nil {
			continue
		}
		c := f.value(kind, b.v)
		f.arena.Node(c).Name = b.name
		f.arena.Attach(id, c)
	}
	f.Settings = append(f.Settings, id)
	if f.defaults == nil {
		f.defaults = make(map[string]meta.Value)
	}
	f.defaults[name] = v
	return id
}

// Setting returns the setting named name, or None.
func (f *Filter) Setting(name string) meta.ID {
	for _, id := range f.Settings {
		if f.arena.Node(id).Name == name {
			return id
		}
	}
	return meta.None
}

// LookupSetting resolves an exact setting name or a unique prefix of one.
func (f *Filter) LookupSetting(prefix string) (meta.ID, error) {
	if id := f.Setting(prefix); id != meta.None {
		return id, nil
	}
	found := meta.None
	for _, id := range f.Settings {
		if !strings.HasPrefix(f.arena.Node(id).Name, prefix) {
			continue
		}
		if found != meta.None {
			return meta.None, fmt.Errorf("%w: %q is ambiguous on %s", ErrUnknownSetting, prefix, f.Core.ShortName)
		}
		found = id
	}
	if found == meta.None {
		return meta.None, fmt.Errorf("%w: %q on %s", ErrUnknownSetting, prefix, f.Core.ShortName)
	}
	return found, nil
}

func (f *Filter) settingValue(name string) meta.Value {
	if id := f.Setting(name); id != meta.None {
		return f.arena.Node(id).Value
	}
	return nil
}

// IntSetting returns the value of an int setting, 0 if absent.
func (f *Filter) IntSetting(name string) int {
	v, _ := f.settingValue(name).(int)
	return v
}

// FloatSetting returns the value of a float setting, 0 if absent.
func (f *Filter) FloatSetting(name string) float64 {
	v, _ := f.settingValue(name).(float64)
	return v
}

// StringSetting returns the value of a string setting, "" if absent.
func (f *Filter) StringSetting(name string) string {
	v, _ := f.settingValue(name).(string)
	return v
}

// Set assigns a setting. Ints are accepted for float settings; values are
// checked against the min and max bounds.
func (f *Filter) Set(name string, v meta.Value) error {
	id := f.Setting(name)
	if id == meta.None {
		return fmt.Errorf("%w: %q on %s", ErrUnknownSetting, name, f.Core.ShortName)
	}
	n := f.arena.Node(id)
	if i, ok := v.(int); ok && n.Kind == meta.KindFloat {
		v = float64(i)
	}
	if k, ok := kindOf(v); !ok || k != n.Kind {
		return fmt.Errorf("%w: %s.%s wants %s, got %T", ErrSettingType, f.Core.ShortName, name, n.Kind, v)
	}
	for _, c := range n.Children {
		b := f.arena.Node(c)
		if (b.Name == "min" && less(v, b.Value)) || (b.Name == "max" && less(b.Value, v)) {
			return fmt.Errorf("%w: %s.%s=%v, %s is %v", ErrSettingRange, f.Core.ShortName, name, v, b.Name, b.Value)
		}
	}
	n.Value = v
	return nil
}

// Changed returns the settings whose value differs from the declared
// default, in declaration order.
func (f *Filter) Changed() []meta.ID {
	var out []meta.ID
	for _, id := range f.Settings {
		n := f.arena.Node(id)
		if !n.Kind.Equal(n.Value, f.defaults[n.Name]) {
			out = append(out, id)
		}
	}
	return out
}

func less(a, b meta.Value) bool {
	switch av := a.(type) {
	case int:
		bv, ok := b.(int)
		return ok && av < bv
	case float64:
		bv, ok := b.(float64)
		return ok && av < bv
	}
	return false
}
