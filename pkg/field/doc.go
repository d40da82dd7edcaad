// Package field provides the per-point scalar storage and point-to-worker
// distribution maps for a correlation analysis.
//
// # Overview
//
// Every analysis point carries a fixed set of named scalar attributes
// (coordinates, displacements, strains, fit quality metrics, bookkeeping
// values). The field package holds those attributes in a Store, double
// buffered so that each frame can read the previous frame's committed
// solution while writing the current one.
//
// # Replicated and partitioned stores
//
// A run keeps two forms of the same data:
//
//   - a replicated Store, where every consumer can see every point, used
//     between frames for post-processing and reporting
//   - one partitioned Store per worker, holding only the points that worker
//     owns, used during frame execution
//
// A Map describes the ownership: exactly one worker owns each point id, and
// the order of a worker's local list is the order its points are processed
// in. Push copies replicated values out to the partitioned stores at the
// start of a frame; Pull merges the partitioned values back afterwards.
// These two copies are the only synchronization points in a frame.
//
// # Sentinels
//
// Quality fields (SIGMA, MATCH, GAMMA) use -1 to mean "no valid solution",
// which is also their initial value, so consumers can distinguish a point
// that failed this frame from one that has never been solved. NEIGHBOR_ID
// uses -1 to mark a seed point.
package field
