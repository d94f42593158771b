//go:build libsql

package db

import (
	_ "github.com/tursodatabase/go-libsql"
)

// Builds tagged libsql use the embedded libSQL engine instead of the
// WASM SQLite build. Requires cgo.
const driverName = "libsql"

func dataSource(path string) string {
	return "file:" + path
}
