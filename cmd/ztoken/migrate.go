package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ztoken-ledger/internal/config"
	"ztoken-ledger/internal/storage/migrations"
	pgstore "ztoken-ledger/internal/storage/postgres"
)

var migrateConf = &config.MigrateConfig{}

func init() {
	config.SetupLogFlags(&migrateConf.Log, migrateCmd)
	config.SetupPostgresFlags(&migrateConf.Postgres, migrateCmd)
	config.SetupClickHouseFlags(&migrateConf.ClickHouse, migrateCmd)
	config.SetupMigrateSpecificFlags(migrateConf, migrateCmd)

	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Applies the postgres ledger schema and the clickhouse journal schema.",
	Long: `Applies pending postgres migrations when postgres.dsn is set and creates the
clickhouse journal tables when clickhouse.dsn is set. With --status only lists
the postgres migration state.`,
	PreRunE: setupMigrate,
	RunE:    migrate,
	PostRun: closeLogger,
}

func setupMigrate(cmd *cobra.Command, _ []string) error {
	bindFlags(cmd, viperConf)

	if err := migrateConf.Validate(); err != nil {
		return err
	}
	_, err := setupLogger(migrateConf.Log)
	return err
}

func migrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cmdLogger("migrate")

	if migrateConf.Postgres.DSN != "" {
		pool, err := pgstore.NewPool(ctx, migrateConf.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if migrateConf.Base.Status {
			applied, pending, err := migrations.PostgresStatus(ctx, pool)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, a := range applied {
				fmt.Fprintf(out, "applied  %s  %s\n", a.Version, time.UnixMilli(a.AppliedAt).UTC().Format(time.RFC3339))
			}
			for _, p := range pending {
				fmt.Fprintf(out, "pending  %s\n", p)
			}
			return nil
		}

		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			return err
		}
		logger.Info().Strs("applied", applied).Msg("postgres migrations complete")
	}

	if migrateConf.ClickHouse.DSN != "" && !migrateConf.Base.Status {
		conn, err := migrations.RunClickhouseMigrations(ctx, migrateConf.ClickHouse.DSN)
		if err != nil {
			return err
		}
		conn.Close()
		logger.Info().Msg("clickhouse migrations complete")
	}

	return nil
}
