// ABOUTME: In-memory Backend for tests, without unique constraints or atomic upsert
// ABOUTME: JSON columns round-trip through encoding/json so reads look like a real store

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MockStore is an in-memory Backend. It deliberately enforces no unique
// keys, so callers relying on the update-then-insert path can observe the
// duplicate-row race.
type MockStore struct {
	mu     sync.RWMutex
	tables map[string][]Row
	err    error // returned by every operation when set
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{tables: make(map[string][]Row)}
}

// FailWith makes every subsequent operation return err. Pass nil to recover.
func (m *MockStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Rows returns a copy of every row in table, in insertion order.
func (m *MockStore) Rows(table string) []Row {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Row, 0, len(m.tables[table]))
	for _, r := range m.tables[table] {
		out = append(out, m.read(table, r))
	}
	return out
}

// Select returns matching rows, ordered and limited as requested.
func (m *MockStore) Select(ctx context.Context, q Query) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}
	schema, err := schemaFor(q.Table)
	if err != nil {
		return nil, err
	}
	if err := schema.checkColumns(q.Filters, q.OrderBy, nil); err != nil {
		return nil, err
	}

	var out []Row
	for _, r := range m.tables[q.Table] {
		if matches(r, q.Filters) {
			out = append(out, m.read(q.Table, r))
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			return less(out[i][q.OrderBy], out[j][q.OrderBy], q.Descending, q.NullsLast)
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	if out == nil {
		out = []Row{}
	}
	return out, nil
}

// Update overwrites values on matching rows.
func (m *MockStore) Update(ctx context.Context, table string, filters []Filter, values Row) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	schema, err := schemaFor(table)
	if err != nil {
		return nil, err
	}
	if err := schema.checkColumns(filters, "", values); err != nil {
		return nil, err
	}
	encoded, err := encodeRow(schema, values)
	if err != nil {
		return nil, err
	}

	out := []Row{}
	for _, r := range m.tables[table] {
		if !matches(r, filters) {
			continue
		}
		for k, v := range encoded {
			r[k] = v
		}
		out = append(out, m.read(table, r))
	}
	return out, nil
}

// Insert appends a row. Missing columns are stored as null.
func (m *MockStore) Insert(ctx context.Context, table string, values Row) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	schema, err := schemaFor(table)
	if err != nil {
		return nil, err
	}
	if err := schema.checkColumns(nil, "", values); err != nil {
		return nil, err
	}
	encoded, err := encodeRow(schema, values)
	if err != nil {
		return nil, err
	}

	row := make(Row, len(schema.columns))
	for _, col := range schema.columns {
		row[col] = encoded[col]
	}
	m.tables[table] = append(m.tables[table], row)
	return []Row{m.read(table, row)}, nil
}

// Delete removes matching rows.
func (m *MockStore) Delete(ctx context.Context, table string, filters []Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return 0, m.err
	}
	schema, err := schemaFor(table)
	if err != nil {
		return 0, err
	}
	if err := schema.checkColumns(filters, "", nil); err != nil {
		return 0, err
	}

	kept := m.tables[table][:0]
	var removed int64
	for _, r := range m.tables[table] {
		if matches(r, filters) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.tables[table] = kept
	return removed, nil
}

// Put stores a raw row as-is, bypassing encoding. Tests use it to plant
// malformed data.
func (m *MockStore) Put(table string, row Row) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make(Row, len(row))
	for k, v := range row {
		cp[k] = v
	}
	m.tables[table] = append(m.tables[table], cp)
}

// read copies a stored row, decoding JSON columns.
func (m *MockStore) read(table string, r Row) Row {
	schema := schemas[table]
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
		s, ok := v.(string)
		if !ok || !schema.json[k] {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			out[k] = decoded
		}
	}
	return out
}

func encodeRow(schema tableSchema, values Row) (Row, error) {
	out := make(Row, len(values))
	for k, v := range values {
		enc, err := encodeValue(schema, k, v)
		if err != nil {
			return nil, err
		}
		out[k] = enc
	}
	return out, nil
}

func matches(r Row, filters []Filter) bool {
	for _, f := range filters {
		if f.Value == nil {
			if r[f.Column] != nil {
				return false
			}
			continue
		}
		if fmt.Sprint(r[f.Column]) != fmt.Sprint(f.Value) || r[f.Column] == nil {
			return false
		}
	}
	return true
}

// less orders two column values as strings, with nulls placed according to nullsLast.
func less(a, b any, desc, nullsLast bool) bool {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return false
		}
		// a is null: it sorts first unless nulls go last
		if a == nil {
			return !nullsLast
		}
		return nullsLast
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	if desc {
		return as > bs
	}
	return as < bs
}

var _ Backend = (*MockStore)(nil)
