//go:build purego || !sqlite_cgo

package storage

// This file is compiled by default and with the purego tag. It needs no C
// compiler and cross-compiles cleanly.
//
// Build command:
//   CGO_ENABLED=0 go build -tags "purego" ./...
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
