package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver "pgx"
	_ "modernc.org/sqlite"             // database/sql driver "sqlite"

	"datagate/internal/config"
)

var ErrNotFound = errors.New("not found")

// Querier runs read queries. *sql.DB, *sql.Tx and *sql.Conn satisfy it;
// nothing in datagate writes item data.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store is the item database together with its dialect.
type Store struct {
	DB      *sql.DB
	Dialect Dialect
}

// New opens and pings the database described by cfg.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	dialect := NewDialect(cfg.Driver)
	db, err := sql.Open(dialect.DriverName(), cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	switch {
	case cfg.IsSQLite():
		// one writer; WAL lets readers proceed
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "enable WAL")
		}
	case cfg.PoolSize > 0:
		db.SetMaxOpenConns(cfg.PoolSize)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping %s", dialect.Name())
	}
	return &Store{DB: db, Dialect: dialect}, nil
}

func (s *Store) Close() {
	s.DB.Close()
}

// QueryRows runs a query and returns every row keyed by column name.
func QueryRows(ctx context.Context, q Querier, sqlStr string, args ...any) ([]map[string]any, error) {
	rows, err := q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "columns")
	}
	var out []map[string]any
	for rows.Next() {
		row, err := scanMap(rows, columns)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, errors.Wrap(rows.Err(), "rows")
}

// QueryRow returns the first row of a query, or ErrNotFound.
func QueryRow(ctx context.Context, q Querier, sqlStr string, args ...any) (map[string]any, error) {
	rows, err := QueryRows(ctx, q, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Exists reports whether a query produces at least one row. Only the
// first row is read.
func Exists(ctx context.Context, q Querier, sqlStr string, args ...any) (bool, error) {
	rows, err := q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return false, errors.Wrap(err, "query")
	}
	defer rows.Close()
	found := rows.Next()
	return found, errors.Wrap(rows.Err(), "rows")
}

func scanMap(rows *sql.Rows, columns []string) (map[string]any, error) {
	cells := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range cells {
		dest[i] = &cells[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, errors.Wrap(err, "scan")
	}
	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = jsonValue(cells[i])
	}
	return row, nil
}

// sqliteTimestamp is the layout SQLite's CURRENT_TIMESTAMP writes.
const sqliteTimestamp = "2006-01-02 15:04:05"

// jsonValue turns driver values into values that encode to JSON as the
// payload walker expects. TEXT often arrives as []byte; SQLite stores
// timestamps as text.
func jsonValue(v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	s := string(b)
	for _, layout := range []string{sqliteTimestamp, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return s
}
