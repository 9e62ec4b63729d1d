// Package render turns tile requests into rendered tiles.
//
// A Coordinator owns a fixed number of workers. A request waits for a free
// worker, pins the chain's configuration and renders the sink stage. Each
// stage is looked up in the tile cache under its stage hash and area; on a
// miss the stage's input area is rendered first, recursively, and the
// stage's worker fills a fresh tile that is then inserted.
//
// Renders are never cancelled once started. A result superseded by a newer
// request still completes and stays in the cache.
package render
