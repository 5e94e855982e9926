// Package cli implements the opensales subcommands.
package cli

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/config"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/db"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/logging"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/server"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/visits"
)

// loadConfig resolves the --config flag into a Config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// ServeCmd returns the serve command.
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the field API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			database, err := db.Open(filepath.Join(cfg.Server.DataDir, "opensales.db"))
			if err != nil {
				return err
			}
			defer database.Close()

			migrator := db.NewMigrator(database.DB)
			if err := migrator.Initialize(); err != nil {
				return fmt.Errorf("failed to initialize migrator: %w", err)
			}
			if err := migrator.Up(); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			repo := db.NewRepository(database.DB)
			defer repo.Close()

			svc := visits.NewService(repo, cfg.Server.ProximityMeters, cfg.Server.MinVisitDuration())
			srv := server.New(repo, svc)

			logging.Info("Server listening", map[string]interface{}{
				"addr": cfg.Server.ListenAddr,
			})
			return http.ListenAndServe(cfg.Server.ListenAddr, srv.Handler())
		},
	}
}

// MigrateCmd returns the migrate command.
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply server schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			database, err := db.Open(filepath.Join(cfg.Server.DataDir, "opensales.db"))
			if err != nil {
				return err
			}
			defer database.Close()

			migrator := db.NewMigrator(database.DB)
			if err := migrator.Initialize(); err != nil {
				return fmt.Errorf("failed to initialize migrator: %w", err)
			}
			if err := migrator.Up(); err != nil {
				return err
			}

			version, err := migrator.CurrentVersion()
			if err != nil {
				return err
			}
			fmt.Printf("Schema at version %d\n", version)
			return nil
		},
	}
}
