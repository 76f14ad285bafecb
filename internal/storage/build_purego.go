//go:build purego || !sqlite_vec

package storage

// Default build: modernc.org/sqlite needs no C toolchain. Without a vector
// extension, SearchCandidates loads a workspace's vectors and compares
// them pairwise in Go.

import (
	_ "modernc.org/sqlite"
)

const (
	DriverName               = "sqlite"
	VectorExtensionAvailable = false
	BuildMode                = "purego"
)
