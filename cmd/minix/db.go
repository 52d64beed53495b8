package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jlym/minix/internal/app"
	"github.com/jlym/minix/internal/config"
	"github.com/jlym/minix/internal/postgres"
	"github.com/jlym/minix/internal/storage"
)

func (c *cli) dbCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "db create|drop|truncate",
		Short:     "Manage the backend database",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"create", "drop", "truncate"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			if c.cfg.Backend == config.BackendPostgres {
				return c.runPostgresAction(ctx, args[0])
			}
			return c.runSQLiteAction(ctx, args[0])
		},
	}
}

func (c *cli) runPostgresAction(ctx context.Context, action string) error {
	dbManager := postgres.NewDBManager(app.PGOptions(c.cfg))
	dbManager.Logger = c.logger.With("component", "postgres")

	switch action {
	case "create":
		return dbManager.InitDB(ctx)
	case "drop":
		return dbManager.DropDB(ctx)
	case "truncate":
		return dbManager.TruncateTables(ctx)
	}
	return fmt.Errorf("unsupported action: \"%s\"", action)
}

func (c *cli) runSQLiteAction(ctx context.Context, action string) error {
	switch action {
	case "create", "truncate":
		server, err := app.OpenServer(ctx, c.cfg)
		if err != nil {
			return err
		}
		defer server.Close()
		if action == "truncate" {
			return server.(*storage.SQLiteServer).TruncateTables(ctx)
		}
		return nil
	case "drop":
		err := os.Remove(c.cfg.SQLitePath)
		if err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "removing database failed, path=\"%s\"", c.cfg.SQLitePath)
		}
		return nil
	}
	return fmt.Errorf("unsupported action: \"%s\"", action)
}
