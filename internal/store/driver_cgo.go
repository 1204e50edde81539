//go:build cgo

// ABOUTME: Registers the cgo SQLite driver under the "sqlite3" name
// ABOUTME: Pure-Go builds fall back to the modernc driver registered as "sqlite"

package store

import (
	_ "github.com/mattn/go-sqlite3"
)
