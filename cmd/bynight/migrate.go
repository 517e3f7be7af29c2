package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/bynight/pkg/database"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the read model migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if a.cfg.DatabaseMigrationVersion < 0 {
				return fmt.Errorf("invalid migration version %d", a.cfg.DatabaseMigrationVersion)
			}
			if err := a.connectDatabase(ctx); err != nil {
				return err
			}

			return database.NewMigrationService(a.logger, database.MigrationConfig{
				FolderPath: a.cfg.DatabaseMigrationFolderPath,
				Version:    uint(a.cfg.DatabaseMigrationVersion),
				Force:      a.cfg.DatabaseMigrationForce,
			}).Migrate(a.db, a.cfg.DatabaseName)
		},
	}
}
