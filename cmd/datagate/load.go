package main

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"datagate/internal/config"
	"datagate/internal/logger"
	"datagate/internal/metadata"
	"datagate/internal/permissions"
)

// loader reads the schema and the permission rules from their configured
// sources. pool is nil when both come from files.
type loader struct {
	cfg  *config.Config
	pool *pgxpool.Pool
}

func (l *loader) schema(ctx context.Context) (*metadata.SchemaOverview, error) {
	if l.cfg.Schema.File != "" {
		return metadata.LoadFile(l.cfg.Schema.File)
	}
	if l.pool == nil {
		return nil, errors.New("schema.file is required without a postgres database")
	}
	return metadata.LoadFromDB(ctx, l.pool)
}

func (l *loader) rules(ctx context.Context) ([]*permissions.Rule, error) {
	if l.cfg.Permissions.File != "" {
		return permissions.LoadFile(l.cfg.Permissions.File)
	}
	if l.pool == nil {
		return nil, errors.New("permissions.file is required without a postgres database")
	}
	return permissions.LoadFromDB(ctx, l.pool)
}

// reload refreshes reg and ps. The permission rules are only swapped once
// the schema loaded.
func (l *loader) reload(ctx context.Context, reg *metadata.Registry, ps *permissions.Store) error {
	s, err := l.schema(ctx)
	if err != nil {
		return errors.Wrap(err, "load schema")
	}
	rules, err := l.rules(ctx)
	if err != nil {
		return errors.Wrap(err, "load permissions")
	}

	changed, err := reg.Load(s)
	if err != nil {
		return err
	}
	if err := ps.Load(rules); err != nil {
		return err
	}
	logger.Log.Info("metadata loaded",
		zap.Bool("schema_changed", changed),
		zap.String("fingerprint", reg.Fingerprint()),
		zap.Int("rules", len(rules)))
	return nil
}
