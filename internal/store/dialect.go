package store

import (
	"context"
	"database/sql"
	"strconv"
)

// Dialect renders the SQL that differs between PostgreSQL and SQLite.
// Every value is bound through a ParamBuilder.
type Dialect interface {
	Name() string
	// DriverName is the database/sql driver: "pgx" or "sqlite".
	DriverName() string
	Placeholder(index int) string
	NewParamBuilder() ParamBuilder

	// InExpr and NotInExpr bind a whole list: one array parameter on
	// postgres, one parameter per element on sqlite.
	InExpr(field string, pb ParamBuilder, values []any) string
	NotInExpr(field string, pb ParamBuilder, values []any) string

	// CastText is used where a primary key meets a polymorphic foreign
	// key stored as text.
	CastText(expr string) string
	// DatePart extracts year, month, week, day, weekday, hour, minute or
	// second as an integer.
	DatePart(part, expr string) string
	// JSONExtract returns the text at path inside a JSON column.
	JSONExtract(expr string, path []string, pb ParamBuilder) string
	// Intersects tests a geometry column against a GeoJSON value; bbox
	// compares bounding boxes only.
	Intersects(expr string, pb ParamBuilder, geoJSON any, bbox bool) string
	Regex(expr string, pb ParamBuilder, pattern any) string

	// SystemTablesSQL is the DDL of _collections, _relations and _permissions.
	SystemTablesSQL() string
	TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error)
}

// ParamBuilder collects the bound values of one statement in placeholder
// order.
type ParamBuilder interface {
	// Add binds v and returns its placeholder.
	Add(v any) string
	Params() []any
	Count() int
}

// NewDialect maps a config driver name to its dialect. Anything but
// "sqlite" is postgres.
func NewDialect(driver string) Dialect {
	if driver == "sqlite" {
		return &SQLiteDialect{}
	}
	return &PostgresDialect{}
}

// numberedParams numbers placeholders from 1 behind a fixed prefix:
// "$" for postgres, "?" for sqlite.
type numberedParams struct {
	prefix string
	params []any
}

func (p *numberedParams) Add(v any) string {
	p.params = append(p.params, v)
	return p.prefix + strconv.Itoa(len(p.params))
}

func (p *numberedParams) Params() []any { return p.params }
func (p *numberedParams) Count() int    { return len(p.params) }
