// ABOUTME: database/sql implementation of Backend for SQLite (modernc, mattn) and PostgreSQL (lib/pq)
// ABOUTME: Builds whitelisted statements, encodes JSON columns on write and decodes them on read

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite"   // modernc.org/sqlite, pure Go
	DriverSQLite3  = "sqlite3"  // github.com/mattn/go-sqlite3, cgo builds only
	DriverPostgres = "postgres" // github.com/lib/pq
)

// Options selects and configures the database.
type Options struct {
	Driver string // one of the Driver constants, defaults to DriverSQLite
	Path   string // database file for the sqlite drivers, ":memory:" allowed
	DSN    string // connection string for postgres
	Logger *slog.Logger
}

// SQLStore implements Backend and ConflictUpserter over database/sql.
type SQLStore struct {
	db       *sql.DB
	postgres bool
	logger   *slog.Logger
}

// NewSQLiteStore opens a pure-Go SQLite store at path.
// The schema is created if it doesn't exist and parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLStore, error) {
	return Open(Options{Driver: DriverSQLite, Path: path})
}

// Open connects to the configured database and ensures the schema exists.
func Open(opts Options) (*SQLStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite, DriverSQLite3:
		if opts.Path == "" {
			return nil, fmt.Errorf("database path is required for driver %q", driver)
		}
		if opts.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err = sql.Open(driver, opts.Path)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		// One connection keeps PRAGMAs and :memory: databases consistent
		// and serializes writers instead of surfacing SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("applying %q: %w", pragma, err)
			}
		}
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("database dsn is required for driver %q", driver)
		}
		db, err = sql.Open(driver, opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(2 * time.Hour)
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("pinging database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	s := &SQLStore{
		db:       db,
		postgres: driver == DriverPostgres,
		logger:   logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("store initialized", "driver", driver)
	return s, nil
}

// createSchema creates the tables if they don't exist. The unique index on
// (profile_id, agent_id) is what keeps concurrent fallback upserts from
// producing duplicate conversations.
func (s *SQLStore) createSchema() error {
	jsonType := "TEXT"
	if s.postgres {
		jsonType = "JSONB"
	}

	schema := `
		CREATE TABLE IF NOT EXISTS agent_conversations (
			id TEXT PRIMARY KEY,
			profile_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			agent_name TEXT,
			agent_description TEXT,
			agent_avatar_url TEXT,
			agent_webhook_url TEXT,
			agent_tools ` + jsonType + `,
			messages ` + jsonType + `,
			summary TEXT,
			last_message_at TEXT,
			created_at TEXT,
			updated_at TEXT
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_agent_conversations_profile_agent
			ON agent_conversations(profile_id, agent_id);

		CREATE INDEX IF NOT EXISTS idx_agent_conversations_profile_updated
			ON agent_conversations(profile_id, updated_at);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			profile_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT,
			meta ` + jsonType + `,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	s.logger.Info("closing store")
	return s.db.Close()
}

// Select runs a filtered, optionally ordered and limited query.
func (s *SQLStore) Select(ctx context.Context, q Query) ([]Row, error) {
	schema, err := schemaFor(q.Table)
	if err != nil {
		return nil, err
	}
	if err := schema.checkColumns(q.Filters, q.OrderBy, nil); err != nil {
		return nil, err
	}

	var b strings.Builder
	var args []any
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(schema.columns, ", "), q.Table)
	args = s.writeWhere(&b, q.Filters, args)
	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", q.OrderBy, dir)
		if q.NullsLast {
			b.WriteString(" NULLS LAST")
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(b.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", q.Table, err)
	}
	return s.collect(rows, schema)
}

// Update sets values on every row matching filters and returns the updated rows.
func (s *SQLStore) Update(ctx context.Context, table string, filters []Filter, values Row) ([]Row, error) {
	schema, err := schemaFor(table)
	if err != nil {
		return nil, err
	}
	if err := schema.checkColumns(filters, "", values); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return s.Select(ctx, Query{Table: table, Filters: filters})
	}

	cols := sortedColumns(values)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(filters))
	for i, col := range cols {
		sets[i] = col + " = ?"
		v, err := encodeValue(schema, col, values[col])
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s SET %s", table, strings.Join(sets, ", "))
	args = s.writeWhere(&b, filters, args)
	fmt.Fprintf(&b, " RETURNING %s", strings.Join(schema.columns, ", "))

	rows, err := s.db.QueryContext(ctx, s.rebind(b.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("updating %s: %w", table, err)
	}
	return s.collect(rows, schema)
}

// Insert adds one row and returns it as stored.
func (s *SQLStore) Insert(ctx context.Context, table string, values Row) ([]Row, error) {
	schema, err := schemaFor(table)
	if err != nil {
		return nil, err
	}
	if err := schema.checkColumns(nil, "", values); err != nil {
		return nil, err
	}

	query, args, err := s.insertStatement(schema, table, values)
	if err != nil {
		return nil, err
	}
	query += fmt.Sprintf(" RETURNING %s", strings.Join(schema.columns, ", "))

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		if isConstraintViolation(err) {
			s.logger.Warn("insert rejected by unique constraint", "table", table)
		}
		return nil, fmt.Errorf("inserting into %s: %w", table, err)
	}
	return s.collect(rows, schema)
}

// Upsert inserts values or, when a row already holds the same conflict key,
// overwrites its mutable columns with the provided values in one statement.
func (s *SQLStore) Upsert(ctx context.Context, table string, conflict []string, values Row) ([]Row, error) {
	schema, err := schemaFor(table)
	if err != nil {
		return nil, err
	}
	conflictFilters := make([]Filter, len(conflict))
	for i, c := range conflict {
		conflictFilters[i] = Filter{Column: c}
	}
	if err := schema.checkColumns(conflictFilters, "", values); err != nil {
		return nil, err
	}

	query, args, err := s.insertStatement(schema, table, values)
	if err != nil {
		return nil, err
	}

	isConflict := make(map[string]bool, len(conflict))
	for _, c := range conflict {
		isConflict[c] = true
	}
	var sets []string
	for _, col := range sortedColumns(values) {
		if isConflict[col] || schema.immutable[col] {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", col, col))
	}
	if len(sets) == 0 {
		query += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(conflict, ", "))
	} else {
		query += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(conflict, ", "), strings.Join(sets, ", "))
	}
	query += fmt.Sprintf(" RETURNING %s", strings.Join(schema.columns, ", "))

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("upserting into %s: %w", table, err)
	}
	result, err := s.collect(rows, schema)
	if err != nil || len(result) > 0 {
		return result, err
	}

	// DO NOTHING returns no row when the key existed; read it back.
	filters := make([]Filter, len(conflict))
	for i, c := range conflict {
		filters[i] = Eq(c, values[c])
	}
	return s.Select(ctx, Query{Table: table, Filters: filters, Limit: 1})
}

// Delete removes every row matching filters and reports how many were removed.
func (s *SQLStore) Delete(ctx context.Context, table string, filters []Filter) (int64, error) {
	schema, err := schemaFor(table)
	if err != nil {
		return 0, err
	}
	if err := schema.checkColumns(filters, "", nil); err != nil {
		return 0, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "DELETE FROM %s", table)
	args := s.writeWhere(&b, filters, nil)

	result, err := s.db.ExecContext(ctx, s.rebind(b.String()), args...)
	if err != nil {
		return 0, fmt.Errorf("deleting from %s: %w", table, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	s.logger.Debug("deleted rows", "table", table, "count", n)
	return n, nil
}

func (s *SQLStore) insertStatement(schema tableSchema, table string, values Row) (string, []any, error) {
	cols := sortedColumns(values)
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("inserting into %s: no values", table)
	}
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		marks[i] = "?"
		v, err := encodeValue(schema, col, values[col])
		if err != nil {
			return "", nil, err
		}
		args[i] = v
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	return query, args, nil
}

func (s *SQLStore) writeWhere(b *strings.Builder, filters []Filter, args []any) []any {
	for i, f := range filters {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		if f.Value == nil {
			fmt.Fprintf(b, "%s IS NULL", f.Column)
			continue
		}
		fmt.Fprintf(b, "%s = ?", f.Column)
		args = append(args, f.Value)
	}
	return args
}

// rebind rewrites ? placeholders as $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) collect(rows *sql.Rows, schema tableSchema) ([]Row, error) {
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	result := []Row{}
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = s.decodeValue(schema, col, raw[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return result, nil
}

// decodeValue normalizes driver values. JSON columns that fail to parse are
// kept as their raw string so the sanitizer discards them.
func (s *SQLStore) decodeValue(schema tableSchema, col string, v any) any {
	switch val := v.(type) {
	case []byte:
		v = string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	}

	str, ok := v.(string)
	if !ok || !schema.json[col] {
		return v
	}
	var decoded any
	if err := json.Unmarshal([]byte(str), &decoded); err != nil {
		s.logger.Warn("undecodable json column", "column", col, "error", err)
		return str
	}
	return decoded
}

func encodeValue(schema tableSchema, col string, v any) (any, error) {
	if !schema.json[col] || v == nil {
		return v, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return string(raw), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", col, err)
	}
	return string(data), nil
}

func sortedColumns(values Row) []string {
	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// isConstraintViolation checks if the error is a UNIQUE constraint violation
// from either SQLite or PostgreSQL.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed") ||
		strings.Contains(errStr, "duplicate key value")
}

var (
	_ Backend          = (*SQLStore)(nil)
	_ ConflictUpserter = (*SQLStore)(nil)
)
