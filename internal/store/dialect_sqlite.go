package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(index int) string {
	return fmt.Sprintf("?%d", index)
}

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &numberedParams{prefix: "?"}
}

// InExpr expands the list into one parameter per element. An empty list
// matches nothing.
func (d *SQLiteDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	return expandList(field, "IN", "1=0", pb, values)
}

func (d *SQLiteDialect) NotInExpr(field string, pb ParamBuilder, values []any) string {
	return expandList(field, "NOT IN", "1=1", pb, values)
}

func expandList(field, op, empty string, pb ParamBuilder, values []any) string {
	if len(values) == 0 {
		return empty
	}
	phs := make([]string, len(values))
	for i, v := range values {
		phs[i] = pb.Add(v)
	}
	return field + " " + op + " (" + strings.Join(phs, ", ") + ")"
}

func (d *SQLiteDialect) CastText(expr string) string {
	return fmt.Sprintf("CAST(%s AS TEXT)", expr)
}

var sqliteDateFormats = map[string]string{
	"year":    "%Y",
	"month":   "%m",
	"week":    "%W",
	"day":     "%d",
	"weekday": "%w",
	"hour":    "%H",
	"minute":  "%M",
	"second":  "%S",
}

func (d *SQLiteDialect) DatePart(part, expr string) string {
	format, ok := sqliteDateFormats[part]
	if !ok {
		format = "%Y"
	}
	return fmt.Sprintf("CAST(strftime('%s', %s) AS INTEGER)", format, expr)
}

func (d *SQLiteDialect) JSONExtract(expr string, path []string, pb ParamBuilder) string {
	var b strings.Builder
	b.WriteString("$")
	for _, p := range path {
		b.WriteString(".")
		b.WriteString(p)
	}
	return fmt.Sprintf("json_extract(%s, %s)", expr, pb.Add(b.String()))
}

// Intersects requires SpatiaLite to be loaded into the connection.
func (d *SQLiteDialect) Intersects(expr string, pb ParamBuilder, geoJSON any, bbox bool) string {
	ph := pb.Add(geoJSONText(geoJSON))
	if bbox {
		return fmt.Sprintf("MbrIntersects(%s, GeomFromGeoJSON(%s))", expr, ph)
	}
	return fmt.Sprintf("Intersects(%s, GeomFromGeoJSON(%s))", expr, ph)
}

func (d *SQLiteDialect) Regex(expr string, pb ParamBuilder, pattern any) string {
	return fmt.Sprintf("%s REGEXP %s", expr, pb.Add(pattern))
}

func (d *SQLiteDialect) SystemTablesSQL() string {
	return sqliteSystemTablesSQL
}

func (d *SQLiteDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?1",
		tableName,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// --- SQLite DDL ---

const sqliteSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _collections (
    name        TEXT PRIMARY KEY,
    definition  TEXT NOT NULL,
    created_at  TEXT DEFAULT (datetime('now')),
    updated_at  TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS _relations (
    collection  TEXT NOT NULL REFERENCES _collections(name) ON DELETE CASCADE,
    field       TEXT NOT NULL,
    definition  TEXT NOT NULL DEFAULT '{}',
    created_at  TEXT DEFAULT (datetime('now')),
    updated_at  TEXT DEFAULT (datetime('now')),
    PRIMARY KEY (collection, field)
);

CREATE TABLE IF NOT EXISTS _permissions (
    id          TEXT PRIMARY KEY,
    policy      TEXT NOT NULL,
    collection  TEXT NOT NULL,
    action      TEXT NOT NULL,
    definition  TEXT NOT NULL DEFAULT '{}',
    created_at  TEXT DEFAULT (datetime('now')),
    updated_at  TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_permissions_policy ON _permissions (policy);
`
