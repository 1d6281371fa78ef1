// Package ledger keeps a SQLite record of pipeline runs and of every frame
// each run displayed.
//
// A run row is written when the run starts and completed from its
// pipeline.Report when it ends. Frame rows carry the geometry and an xxhash
// checksum of the pixels, so two runs over the same clip can be compared
// frame by frame.
package ledger
