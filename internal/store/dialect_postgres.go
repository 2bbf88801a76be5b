package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &numberedParams{prefix: "$"}
}

func (d *PostgresDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	ph := pb.Add(typedArray(values))
	return fmt.Sprintf("%s = ANY(%s)", field, ph)
}

func (d *PostgresDialect) NotInExpr(field string, pb ParamBuilder, values []any) string {
	ph := pb.Add(typedArray(values))
	return fmt.Sprintf("%s != ALL(%s)", field, ph)
}

func (d *PostgresDialect) CastText(expr string) string {
	return fmt.Sprintf("CAST(%s AS TEXT)", expr)
}

func (d *PostgresDialect) DatePart(part, expr string) string {
	switch part {
	case "weekday":
		part = "dow"
	}
	return fmt.Sprintf("CAST(EXTRACT(%s FROM %s) AS INTEGER)", strings.ToUpper(part), expr)
}

func (d *PostgresDialect) JSONExtract(expr string, path []string, pb ParamBuilder) string {
	phs := make([]string, len(path))
	for i, p := range path {
		phs[i] = pb.Add(p)
	}
	return fmt.Sprintf("jsonb_extract_path_text(CAST(%s AS JSONB), %s)", expr, strings.Join(phs, ", "))
}

func (d *PostgresDialect) Intersects(expr string, pb ParamBuilder, geoJSON any, bbox bool) string {
	ph := pb.Add(geoJSONText(geoJSON))
	if bbox {
		return fmt.Sprintf("%s && ST_GeomFromGeoJSON(%s)", expr, ph)
	}
	return fmt.Sprintf("ST_Intersects(%s, ST_GeomFromGeoJSON(%s))", expr, ph)
}

func (d *PostgresDialect) Regex(expr string, pb ParamBuilder, pattern any) string {
	return fmt.Sprintf("%s ~ %s", expr, pb.Add(pattern))
}

func (d *PostgresDialect) SystemTablesSQL() string {
	return pgSystemTablesSQL
}

func (d *PostgresDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = 'public')`,
		tableName,
	).Scan(&exists)
	return exists, err
}

// typedArray narrows a homogeneous []any so the driver can infer a
// Postgres array type.
func typedArray(values []any) any {
	if len(values) == 0 {
		return []string{}
	}
	switch values[0].(type) {
	case string:
		out := make([]string, len(values))
		for i, v := range values {
			s, ok := v.(string)
			if !ok {
				return values
			}
			out[i] = s
		}
		return out
	case int64:
		out := make([]int64, len(values))
		for i, v := range values {
			n, ok := v.(int64)
			if !ok {
				return values
			}
			out[i] = n
		}
		return out
	case float64:
		out := make([]float64, len(values))
		for i, v := range values {
			f, ok := v.(float64)
			if !ok {
				return values
			}
			out[i] = f
		}
		return out
	}
	return values
}

func geoJSONText(v any) any {
	switch v.(type) {
	case string, []byte:
		return v
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	return string(data)
}

// --- PostgreSQL DDL ---

const pgSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _collections (
    name        TEXT PRIMARY KEY,
    definition  JSONB NOT NULL,
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _relations (
    collection  TEXT NOT NULL REFERENCES _collections(name) ON DELETE CASCADE,
    field       TEXT NOT NULL,
    definition  JSONB NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW(),
    PRIMARY KEY (collection, field)
);

CREATE TABLE IF NOT EXISTS _permissions (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    policy      TEXT NOT NULL,
    collection  TEXT NOT NULL,
    action      TEXT NOT NULL,
    definition  JSONB NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_permissions_policy ON _permissions (policy);
`
