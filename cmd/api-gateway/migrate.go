package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"spacehub/api-gateway/internal/migrate"
	"spacehub/api-gateway/internal/registry"
)

func migrateCmd() *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the service table schema to DATABASE_URL",
		Long: `Apply embedded migrations to the Postgres schema named by GATEWAY_DB_SCHEMA.

With --seed, the configured service table (SERVICES_FILE or the built-in
defaults) is upserted into the database afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required for migrate")
			}
			st, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			applied, err := migrate.Run(ctx, st.db, cfg.DBSchema)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s) %v\n", len(applied), applied)

			if !seed {
				return nil
			}
			repo := registry.NewSQLRepository(st.db, cfg.DBSchema)
			for _, s := range cfg.Services {
				if err := repo.Save(ctx, s); err != nil {
					return fmt.Errorf("seed %s: %w", s.Name, err)
				}
			}
			logger.Info("seeded service table", "services", len(cfg.Services))
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "upsert the configured service table after migrating")
	return cmd
}
