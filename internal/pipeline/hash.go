package pipeline

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/ironsheep/image-pipeline/internal/filter"
)

// stageHash folds one configured stage into the hash of everything upstream.
// Filter and node IDs are left out so that an identical chain rebuilt from
// scratch hashes the same.
func stageHash(prev uint64, f *filter.Filter) uint64 {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], prev)
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(f.Core.ShortName)

	a := f.Arena()
	for _, id := range f.Settings {
		n := a.Node(id)
		fmt.Fprintf(d, ";%s=%v", n.Name, n.Value)
	}
	for _, id := range f.Tunes {
		n := a.Node(id)
		fmt.Fprintf(d, ";~%s=%v", n.Name, n.Value)
	}
	fmt.Fprintf(d, ";%s", f.Output)
	return d.Sum64()
}
