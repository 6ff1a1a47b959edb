//cmd/seeder/main.go
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-autoresponder/internal/config"
	"github.com/unclebandit/campaign-autoresponder/internal/db"
	"github.com/unclebandit/campaign-autoresponder/internal/logging"
	"github.com/unclebandit/campaign-autoresponder/internal/repository"
	"github.com/unclebandit/campaign-autoresponder/internal/seed"
)

var (
	seedFile  string
	downSteps int
)

var rootCmd = &cobra.Command{
	Use:   "seeder",
	Short: "Database migrations and campaign seeding",
	Long: `seeder manages the autoresponder schema and loads campaigns,
responders and templates from a YAML or TOML seed file.

Example:
  seeder migrate up
  seeder migrate down --steps 1
  seeder seed --file configs/campaigns.yaml`,
	SilenceUsage: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(conn *sql.DB, logger *zap.Logger) error {
			return db.Migrate(conn, logger)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if downSteps < 1 {
			return fmt.Errorf("--steps must be at least 1")
		}
		return withDB(cmd.Context(), func(conn *sql.DB, logger *zap.Logger) error {
			return db.Rollback(conn, downSteps, logger)
		})
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create or update campaigns from a seed file",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := seed.Load(seedFile)
		if err != nil {
			return err
		}
		return withDB(cmd.Context(), func(conn *sql.DB, logger *zap.Logger) error {
			return seed.Apply(cmd.Context(), repository.NewPostgresStore(conn), f, logger)
		})
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "seed file (.yaml, .yml or .toml)")
	_ = seedCmd.MarkFlagRequired("file")

	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	rootCmd.AddCommand(migrateCmd, seedCmd)
}

// withDB loads configuration, connects to Postgres and runs fn.
func withDB(ctx context.Context, fn func(conn *sql.DB, logger *zap.Logger) error) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	logger, err := logging.InitLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	conn, err := db.Open(ctx, cfg.GetDatabase(), logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	return fn(conn, logger)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
