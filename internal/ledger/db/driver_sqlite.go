//go:build !libsql

package db

import (
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const driverName = "sqlite3"

func dataSource(path string) string {
	return "file:" + path
}
