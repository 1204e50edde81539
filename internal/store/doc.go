// Package store provides row-level persistence for conversations and audio
// message records.
//
// # Architecture
//
// Callers talk to the Backend interface in terms of tables, equality
// filters and untyped rows:
//
//   - Backend: Select, Update, Insert and Delete
//   - ConflictUpserter: optional single-statement insert-or-update on a unique key
//
// SQLStore implements both over database/sql. MockStore implements only
// Backend and enforces no unique keys, which lets tests reproduce the
// update-then-insert race.
//
// # Drivers
//
//   - sqlite: modernc.org/sqlite, pure Go, the default
//   - sqlite3: github.com/mattn/go-sqlite3, registered only in cgo builds
//   - postgres: github.com/lib/pq, placeholders are rebound to $n
//
// SQLite connections run with WAL journaling, foreign keys and a busy
// timeout, on a single pooled connection.
//
// # Tables
//
//   - agent_conversations: one row per (profile_id, agent_id), enforced by a unique index
//   - messages: audio message rows written by the upload pipeline
//
// Table and column names are checked against a whitelist before any SQL
// is built. JSON columns (agent_tools, messages, meta) are encoded on write
// and decoded into maps and slices on read; values that fail to decode are
// returned as their raw string.
//
// # Usage
//
//	s, err := store.Open(store.Options{Driver: store.DriverSQLite, Path: "/var/lib/coven-sync/sync.db"})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	rows, err := s.Select(ctx, store.Query{
//	    Table:      store.TableConversations,
//	    Filters:    []store.Filter{store.Eq("profile_id", owner)},
//	    OrderBy:    "updated_at",
//	    Descending: true,
//	    NullsLast:  true,
//	})
package store
