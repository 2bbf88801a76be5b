package main

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"datagate/internal/api"
	"datagate/internal/auth"
	"datagate/internal/instrument"
	"datagate/internal/logger"
	"datagate/internal/metadata"
	"datagate/internal/permissions"
	"datagate/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logger.Log
		log.Info("config loaded",
			zap.Int("port", cfg.Server.Port),
			zap.String("driver", cfg.Database.Driver),
			zap.String("database", cfg.Database.Name))

		// 1. Connect to database
		db, err := store.New(ctx, cfg.Database)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer db.Close()

		// 2. Bootstrap system tables
		if err := db.Bootstrap(ctx); err != nil {
			return err
		}

		// 3. Metadata loads through pgx when it lives in postgres
		var pool *pgxpool.Pool
		if !cfg.Database.IsSQLite() {
			pool, err = store.OpenPool(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()
		}

		// 4. Load schema and permissions
		reg := metadata.NewRegistry()
		rules := permissions.NewStore()
		ld := &loader{cfg: cfg, pool: pool}
		if err := ld.reload(ctx, reg, rules); err != nil {
			log.Warn("failed to load metadata", zap.Error(err))
		}

		// 5. Create Fiber app
		app := fiber.New(fiber.Config{
			ErrorHandler:          api.ErrorHandler,
			DisableStartupMessage: true,
		})
		app.Use(recover.New(recover.Config{EnableStackTrace: true}))
		app.Use(instrument.Middleware(instrument.NewInstrumenter()))

		// 6. Register routes
		h := api.NewHandler(reg, rules, db, cfg.Walker.Concurrency)
		h.Reload = func(ctx context.Context) error { return ld.reload(ctx, reg, rules) }
		api.Register(app, h, auth.Middleware(cfg.JWTSecret))

		// 7. Start server
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Info("starting server", zap.String("addr", addr))
		return app.Listen(addr)
	},
}
