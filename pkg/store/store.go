package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/dotsetgreg/dbchat/pkg/config"
)

// Column describes one column of a table, with the native type name
// lower-cased.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Store executes CRUD statements against the configured database. Table and
// column identifiers are interpolated into SQL after quote-wrapping; they are
// trusted input from the tool layer. Values always go through placeholders.
type Store struct {
	db     *sql.DB
	driver string
	schema string
}

// Open connects to the database selected by cfg.Database.Driver.
func Open(cfg *config.Config) (*Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case config.DriverSQLite:
		path := cfg.SQLitePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		db, err = sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite db: %w", err)
		}
		// Single shared connection avoids writer lock contention with SQLite.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case config.DriverPostgres:
		db, err = sql.Open("postgres", cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("open postgres db: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Database.Driver)
	}

	s := &Store{db: db, driver: driver, schema: strings.TrimSpace(cfg.Database.Schema)}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the underlying handle for test fixtures.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Schema returns every table in the configured schema mapped to its ordered
// column list.
func (s *Store) Schema(ctx context.Context) (map[string][]Column, error) {
	if s.driver == config.DriverPostgres {
		return s.schemaPostgres(ctx)
	}
	return s.schemaSQLite(ctx)
}

func (s *Store) schemaPostgres(ctx context.Context) (map[string][]Column, error) {
	schema := s.schema
	if schema == "" {
		schema = "public"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1
		ORDER BY table_name, ordinal_position`, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]Column{}
	for rows.Next() {
		var table, name, typ string
		if err := rows.Scan(&table, &name, &typ); err != nil {
			return nil, err
		}
		out[table] = append(out[table], Column{Name: name, Type: strings.ToLower(typ)})
	}
	return out, rows.Err()
}

func (s *Store) schemaSQLite(ctx context.Context) (map[string][]Column, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		tables = append(tables, name)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	out := map[string][]Column{}
	for _, table := range tables {
		cols, err := s.sqliteColumns(ctx, table)
		if err != nil {
			return nil, err
		}
		out[table] = cols
	}
	return out, nil
}

func (s *Store) sqliteColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, Column{Name: name, Type: strings.ToLower(typ)})
	}
	return cols, rows.Err()
}

const rowLimit = 100

// Rows returns up to 100 rows of a table as column→value maps.
func (s *Store) Rows(ctx context.Context, table string) ([]map[string]interface{}, error) {
	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", s.qualified(table), rowLimit)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]map[string]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		scan := make([]interface{}, len(columns))
		for i := range values {
			scan[i] = &values[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Insert writes one row built from data's keys. Fails (and rolls back) on any
// database error, e.g. an invalid column name or a type mismatch.
func (s *Store) Insert(ctx context.Context, table string, data map[string]interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("no data provided for insert")
	}
	keys := sortedKeys(data)

	columns := make([]string, 0, len(keys))
	placeholders := make([]string, 0, len(keys))
	values := make([]interface{}, 0, len(keys))
	for i, k := range keys {
		columns = append(columns, quoteIdent(k))
		placeholders = append(placeholders, s.placeholder(i+1))
		values = append(values, data[k])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.qualified(table), strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	return s.execInTx(ctx, query, values)
}

// Update sets data's columns on every row matching where.
func (s *Store) Update(ctx context.Context, table string, data, where map[string]interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("no data provided for update")
	}
	if len(where) == 0 {
		return fmt.Errorf("update requires a where condition")
	}

	var (
		assignments []string
		values      []interface{}
	)
	n := 1
	for _, k := range sortedKeys(data) {
		assignments = append(assignments, fmt.Sprintf("%s = %s", quoteIdent(k), s.placeholder(n)))
		values = append(values, data[k])
		n++
	}
	conditions, condValues, _ := s.whereClause(where, n)
	values = append(values, condValues...)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		s.qualified(table), strings.Join(assignments, ", "), conditions)
	return s.execInTx(ctx, query, values)
}

// Delete removes every row matching where.
func (s *Store) Delete(ctx context.Context, table string, where map[string]interface{}) error {
	if len(where) == 0 {
		return fmt.Errorf("delete requires a where condition")
	}
	conditions, values, _ := s.whereClause(where, 1)

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", s.qualified(table), conditions)
	return s.execInTx(ctx, query, values)
}

func (s *Store) whereClause(where map[string]interface{}, startIdx int) (string, []interface{}, int) {
	var (
		conditions []string
		values     []interface{}
	)
	n := startIdx
	for _, k := range sortedKeys(where) {
		conditions = append(conditions, fmt.Sprintf("%s = %s", quoteIdent(k), s.placeholder(n)))
		values = append(values, where[k])
		n++
	}
	return strings.Join(conditions, " AND "), values, n
}

// execInTx runs one statement in its own transaction. Any error rolls the
// transaction back and is returned unmodified for the tool layer to surface.
func (s *Store) execInTx(ctx context.Context, query string, values []interface{}) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, values...); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) placeholder(n int) string {
	if s.driver == config.DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (s *Store) qualified(table string) string {
	if s.driver == config.DriverPostgres && s.schema != "" {
		return quoteIdent(s.schema) + "." + quoteIdent(table)
	}
	return quoteIdent(table)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
