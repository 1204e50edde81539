// ABOUTME: Row-oriented persistence contract used by the conversation repository and upload pipeline
// ABOUTME: Defines Row, Filter, Query, the Backend interface and the per-table column whitelist

package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownColumn is returned when a query names a column outside the table whitelist.
var ErrUnknownColumn = errors.New("unknown column")

// ErrUnknownTable is returned when a query names a table the store does not manage.
var ErrUnknownTable = errors.New("unknown table")

// Row is one record as the store returns it. JSON columns are decoded into
// untyped values (maps, slices, float64, string, bool, nil) and must be
// sanitized by the caller before use.
type Row map[string]any

// Filter is an equality predicate on a single column.
type Filter struct {
	Column string
	Value  any
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Value: value}
}

// Query describes a filtered select.
type Query struct {
	Table      string
	Filters    []Filter
	OrderBy    string // empty for unordered
	Descending bool
	NullsLast  bool
	Limit      int // 0 for no limit
}

// Backend is a row store supporting filtered select, update and delete plus insert.
// Update and Insert return the rows they touched.
type Backend interface {
	Select(ctx context.Context, q Query) ([]Row, error)
	Update(ctx context.Context, table string, filters []Filter, values Row) ([]Row, error)
	Insert(ctx context.Context, table string, values Row) ([]Row, error)
	Delete(ctx context.Context, table string, filters []Filter) (int64, error)
}

// ConflictUpserter is implemented by backends that can insert-or-update
// atomically on a unique key.
type ConflictUpserter interface {
	Upsert(ctx context.Context, table string, conflict []string, values Row) ([]Row, error)
}

// Table and column names shared with the conversation and upload packages.
const (
	TableConversations = "agent_conversations"
	TableMessages      = "messages"
)

// tableSchema lists the columns a table accepts and which of them hold JSON.
type tableSchema struct {
	columns []string
	json    map[string]bool
	// immutable columns are never rewritten by an upsert conflict clause
	immutable map[string]bool
}

var schemas = map[string]tableSchema{
	TableConversations: {
		columns: []string{
			"id", "profile_id", "agent_id",
			"agent_name", "agent_description", "agent_avatar_url", "agent_webhook_url", "agent_tools",
			"messages", "summary", "last_message_at", "created_at", "updated_at",
		},
		json:      map[string]bool{"agent_tools": true, "messages": true},
		immutable: map[string]bool{"id": true, "created_at": true},
	},
	TableMessages: {
		columns:   []string{"id", "profile_id", "conversation_id", "type", "content", "meta", "created_at"},
		json:      map[string]bool{"meta": true},
		immutable: map[string]bool{"id": true, "created_at": true},
	},
}

func schemaFor(table string) (tableSchema, error) {
	s, ok := schemas[table]
	if !ok {
		return tableSchema{}, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return s, nil
}

func (s tableSchema) has(column string) bool {
	for _, c := range s.columns {
		if c == column {
			return true
		}
	}
	return false
}

// checkColumns validates every filter, ordering and value column against the whitelist.
func (s tableSchema) checkColumns(filters []Filter, orderBy string, values Row) error {
	for _, f := range filters {
		if !s.has(f.Column) {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, f.Column)
		}
	}
	if orderBy != "" && !s.has(orderBy) {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, orderBy)
	}
	for col := range values {
		if !s.has(col) {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, col)
		}
	}
	return nil
}
