package metadata

import (
	"context"
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"sigs.k8s.io/yaml"

	"datagate/internal/logger"
)

// LoadFromDB reads collections and relations from the _collections and
// _relations system tables. Rows with invalid definitions are skipped.
func LoadFromDB(ctx context.Context, pool *pgxpool.Pool) (*SchemaOverview, error) {
	collections, err := loadCollections(ctx, pool)
	if err != nil {
		return nil, errors.Wrap(err, "load collections")
	}

	relations, err := loadRelations(ctx, pool)
	if err != nil {
		return nil, errors.Wrap(err, "load relations")
	}

	s := &SchemaOverview{Collections: collections, Relations: relations}
	s.Normalize()

	logger.Log.Info("schema loaded",
		zap.Int("collections", len(collections)),
		zap.Int("relations", len(relations)))
	return s, nil
}

// LoadFile reads a YAML (or JSON) schema file.
func LoadFile(path string) (*SchemaOverview, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read schema file %s", path)
	}
	var s SchemaOverview
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(err, "parse schema file %s", path)
	}
	s.Normalize()
	return &s, nil
}

// Reload loads the schema from the database and hands it to the registry.
func Reload(ctx context.Context, pool *pgxpool.Pool, reg *Registry) error {
	s, err := LoadFromDB(ctx, pool)
	if err != nil {
		return err
	}
	changed, err := reg.Load(s)
	if err != nil {
		return err
	}
	if !changed {
		logger.Log.Debug("schema unchanged, keeping current snapshot")
	}
	return nil
}

func loadCollections(ctx context.Context, pool *pgxpool.Pool) (map[string]*Collection, error) {
	rows, err := pool.Query(ctx, "SELECT name, definition FROM _collections ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	collections := make(map[string]*Collection)
	for rows.Next() {
		var name string
		var defJSON []byte
		if err := rows.Scan(&name, &defJSON); err != nil {
			return nil, errors.Wrap(err, "scan collection row")
		}

		var c Collection
		if err := json.Unmarshal(defJSON, &c); err != nil {
			logger.Log.Warn("skipping collection with invalid definition",
				zap.String("collection", name), zap.Error(err))
			continue
		}
		c.Name = name
		collections[name] = &c
	}
	return collections, rows.Err()
}

func loadRelations(ctx context.Context, pool *pgxpool.Pool) ([]*Relation, error) {
	rows, err := pool.Query(ctx, "SELECT collection, field, definition FROM _relations ORDER BY collection, field")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var relations []*Relation
	for rows.Next() {
		var collection, field string
		var defJSON []byte
		if err := rows.Scan(&collection, &field, &defJSON); err != nil {
			return nil, errors.Wrap(err, "scan relation row")
		}

		var rel Relation
		if err := json.Unmarshal(defJSON, &rel); err != nil {
			logger.Log.Warn("skipping relation with invalid definition",
				zap.String("collection", collection), zap.String("field", field), zap.Error(err))
			continue
		}
		rel.Collection = collection
		rel.Field = field
		relations = append(relations, &rel)
	}
	return relations, rows.Err()
}
