package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sgajbi/lotus-advise-sub000/internal/config"
	"github.com/sgajbi/lotus-advise-sub000/internal/migration"
)

func migrateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending forward-only Postgres migrations for the dpm and proposals namespaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runMigrations(cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "optional YAML config file layered under environment overrides")
	return cmd
}

func runMigrations(cfg config.Config) error {
	if cfg.SupportabilityPostgresDSN != "" {
		if err := applyNamespace(cfg.SupportabilityPostgresDSN, "dpm", migration.DPMMigrations); err != nil {
			return err
		}
	} else {
		log.Warn().Msg("DPM_SUPPORTABILITY_POSTGRES_DSN is empty, skipping dpm namespace migrations")
	}

	if cfg.ProposalPostgresDSN != "" {
		if err := applyNamespace(cfg.ProposalPostgresDSN, "proposals", migration.ProposalsMigrations); err != nil {
			return err
		}
	} else {
		log.Warn().Msg("PROPOSAL_POSTGRES_DSN is empty, skipping proposals namespace migrations")
	}

	return nil
}

func applyNamespace(dsn, namespace string, migrations []migration.Migration) error {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return fmt.Errorf("connect for namespace %s: %w", namespace, err)
	}
	defer db.Close()

	runner := migration.NewRunner(db)
	if err := runner.Apply(namespace, migrations); err != nil {
		return fmt.Errorf("apply namespace %s: %w", namespace, err)
	}
	log.Info().Str("namespace", namespace).Int("migrations", len(migrations)).Msg("migrations applied")
	return nil
}
