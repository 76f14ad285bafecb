//go:build sqlite_vec && !purego

package storage

// Built with CGO_ENABLED=1 -tags sqlite_vec. sqlite-vec is linked into
// mattn/go-sqlite3 so SearchCandidates can run vec_distance_cosine as a
// self-join inside the database.

import (
	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

const (
	DriverName               = "sqlite3"
	VectorExtensionAvailable = true
	BuildMode                = "cgo"
)
