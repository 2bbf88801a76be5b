package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"datagate/internal/logger"
)

// Bootstrap creates the _collections, _relations and _permissions system
// tables if they are missing.
func (s *Store) Bootstrap(ctx context.Context) error {
	exists, err := s.Dialect.TableExists(ctx, s.DB, "_permissions")
	if err != nil {
		return errors.Wrap(err, "check system tables")
	}
	if exists {
		return nil
	}
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SystemTablesSQL()); err != nil {
		return errors.Wrap(err, "bootstrap system tables")
	}
	logger.Log.Info("system tables created", zap.String("dialect", s.Dialect.Name()))
	return nil
}
