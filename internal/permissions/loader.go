package permissions

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

// LoadFromDB reads rules from the _permissions system table. The
// definition column holds {permissions, validation, fields}. Rows that do
// not parse are skipped with a warning.
func LoadFromDB(ctx context.Context, pool *pgxpool.Pool) ([]*Rule, error) {
	rows, err := pool.Query(ctx,
		"SELECT CAST(id AS TEXT), policy, collection, action, definition FROM _permissions ORDER BY collection, action, policy")
	if err != nil {
		return nil, errors.Wrap(err, "query permissions")
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		var raw ruleJSON
		var defJSON []byte
		if err := rows.Scan(&raw.ID, &raw.Policy, &raw.Collection, &raw.Action, &defJSON); err != nil {
			return nil, errors.Wrap(err, "scan permission row")
		}
		var def struct {
			Permissions json.RawMessage `json:"permissions"`
			Validation  json.RawMessage `json:"validation"`
			Fields      []string        `json:"fields"`
		}
		if err := json.Unmarshal(defJSON, &def); err != nil {
			logger.Log.Warn("skipping permission with invalid definition",
				zap.String("id", raw.ID), zap.Error(err))
			continue
		}
		raw.Permissions, raw.Validation, raw.Fields = def.Permissions, def.Validation, def.Fields

		var r Rule
		if err := r.fromJSON(raw); err != nil {
			logger.Log.Warn("skipping permission with invalid filter",
				zap.String("id", raw.ID), zap.Error(err))
			continue
		}
		rules = append(rules, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate permissions")
	}

	logger.Log.Info("permissions loaded", zap.Int("rules", len(rules)))
	return rules, nil
}

// File is the on-disk format of a permissions file.
type File struct {
	Rules []*Rule `json:"rules"`
}

// LoadFile reads rules from a YAML (or JSON) file.
func LoadFile(path string) ([]*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read permissions file %s", path)
	}
	return ParseFile(data)
}

func ParseFile(data []byte) ([]*Rule, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse permissions file")
	}
	return f.Rules, nil
}
