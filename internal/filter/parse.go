package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ironsheep/image-pipeline/internal/meta"
)

var (
	// ErrSyntax is returned for a malformed chain description.
	ErrSyntax = errors.New("filter: chain syntax")

	// ErrNotSink is returned when a chain description does not end in a sink.
	ErrNotSink = errors.New("filter: chain does not end in a sink")
)

// Parse builds the chain described by desc into g and returns its sink.
//
// A description is a list of tokens separated by ':'. A token without '='
// names a filter, which is connected after the previous one. A token of
// key=value pairs, separated by ',', sets settings of the last named filter.
// Keys may be abbreviated to a unique prefix of a setting name. Values are
// parsed as int, then float, then taken as a string:
//
//	load:filename=photo.tif,rotation=6:gauss:radius=1.5:memsink
func Parse(reg *Registry, g *Graph, desc string) (*Filter, error) {
	var last *Filter
	for _, tok := range strings.Split(desc, ":") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return nil, fmt.Errorf("%w: empty token in %q", ErrSyntax, desc)
		}

		if strings.Contains(tok, "=") {
			if last == nil {
				return nil, fmt.Errorf("%w: setting %q before the first filter", ErrSyntax, tok)
			}
			if err := ApplySettings(last, tok); err != nil {
				return nil, err
			}
			continue
		}

		core, err := reg.Lookup(tok)
		if err != nil {
			return nil, err
		}
		f := g.Add(core)
		if last != nil {
			if _, err := g.Connect(last.ID, f.ID); err != nil {
				return nil, err
			}
		}
		last = f
	}

	if last == nil || !last.Sink() {
		return nil, fmt.Errorf("%w: %q", ErrNotSink, desc)
	}
	return last, nil
}

// ApplySettings applies a settings token, "key=value[,key=value...]", to f
// the way Parse does.
func ApplySettings(f *Filter, tok string) error {
	for _, kv := range strings.Split(tok, ",") {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return fmt.Errorf("%w: %q is not key=value", ErrSyntax, kv)
		}
		id, err := f.LookupSetting(key)
		if err != nil {
			return err
		}
		n := f.Arena().Node(id)
		v, err := literal(n.Kind, raw)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", f.Core.ShortName, n.Name, err)
		}
		if err := f.Set(n.Name, v); err != nil {
			return err
		}
	}
	return nil
}

func literal(kind meta.Kind, raw string) (meta.Value, error) {
	switch kind {
	case meta.KindString:
		return raw, nil
	case meta.KindInt, meta.KindFloat:
		if i, err := strconv.Atoi(raw); err == nil {
			return i, nil
		}
		if x, err := strconv.ParseFloat(raw, 64); err == nil {
			return x, nil
		}
		return nil, fmt.Errorf("%w: %q is not a number", ErrSettingType, raw)
	}
	return nil, fmt.Errorf("%w: %s settings", ErrSettingType, kind)
}

// Serialize writes the original chain ending in sink in the form read by
// Parse. Only settings that differ from their default are written.
func Serialize(g *Graph, sink ID) (string, error) {
	path, err := g.OrigPath(sink)
	if err != nil {
		return "", err
	}
	toks := make([]string, 0, len(path))
	for _, f := range path {
		toks = append(toks, f.Core.ShortName)
		var kvs []string
		for _, id := range f.Changed() {
			n := g.Arena().Node(id)
			s := fmt.Sprint(n.Value)
			if x, ok := n.Value.(float64); ok {
				s = strconv.FormatFloat(x, 'g', -1, 64)
			}
			if strings.ContainsAny(s, ":,=") {
				return "", fmt.Errorf("%w: %s.%s=%q cannot be written", ErrSyntax, f.Core.ShortName, n.Name, s)
			}
			kvs = append(kvs, n.Name+"="+s)
		}
		if len(kvs) > 0 {
			toks = append(toks, strings.Join(kvs, ","))
		}
	}
	return strings.Join(toks, ":"), nil
}
