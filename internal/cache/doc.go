// Package cache stores rendered tiles under a memory ceiling.
//
// Tiles are keyed by a hash of the producing stage's configuration hash and
// the tile area. Every insertion and every hit stamps the tile with the next
// generation, which serves as the recency signal.
//
// # Eviction
//
// After an insertion the cache evicts while cached memory is at or above the
// ceiling or the slot array, counting the new tile, is at least half
// occupied. Candidates are found by probing the slot array from a random
// position; wanted tiles and the tile being inserted are skipped. The
// Strategy picks among candidates:
//   - SelectRandom: the first candidate found
//   - SelectNapx: the lowest score among K samples
//   - SelectProb: a sample drawn with probability inverse to its score
//
// A score is the product of the selected metrics (distance, render time,
// stage hit rate, recency, depth, scale). Equal scores prefer the older
// generation, then the lower slot.
//
// # Memory Accounting
//
// Four counters track cached tiles, in-flight render memory, worker buffers
// and application images, each with its peak. Only cached-tile memory counts
// against the ceiling.
//
// # Thread Safety
//
// All Cache methods are safe for concurrent use.
package cache
