// Package filter defines pipeline stages, the graph connecting them, the
// registry of named filter constructors and the chain description language.
//
// # Filters
//
// A Filter declares what it requires on its input and what it provides on its
// output as capability trees (see package meta). Input nodes may name a
// replacement: downstream of the filter the matched upstream node is replaced
// by it. Filters without an output tree are sinks, filters without an input
// tree are sources.
//
// Hooks let a filter take part in configuration and rendering:
//   - InputFixed runs once the filter's input is matched
//   - TunesFixed runs after every tuning in the chain is pinned
//   - AreaCalc maps an output tile area to the input area it reads
//   - Worker renders one tile
//
// # Graph
//
// A Graph keeps two topologies over the same filters. The original topology
// is the chain as the user built it; the live topology is produced by
// configuration and may contain inserted adapters. Reconfiguration always
// starts again from the original topology.
//
// # Built-in Catalog
//
//	load        source: TIFF/JPEG tagged 16-bit RGB, or a test gradient
//	loadtiff    adapter: decodes TIFF tagged data
//	loadjpeg    adapter: decodes JPEG tagged data
//	convert     adapter: bit depth and color space conversion (tunings)
//	interleave  adapter: packs planar RGB into one channel
//	fliprot     adapter: applies the orientation tag
//	pretend     overrides the orientation tag
//	contrast, exposure, gauss, sharpen
//	            8-bit planar RGB processing
//	memsink     sink
//
// # Chain Descriptions
//
// Parse reads descriptions such as
//
//	load:filename=photo.tif:contrast:contrast=0.3:memsink
//
// and Serialize writes them back.
package filter
