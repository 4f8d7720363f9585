package cmd

import (
	"context"

	"batchplane/internal/config"
	"batchplane/internal/store/postgres"

	"github.com/spf13/cobra"
)

// migrateDatabase applies the embedded migrations. Tests replace it.
var migrateDatabase = func(ctx context.Context, cfg *config.Config) (uint, error) {
	st, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return 0, err
	}
	defer st.Close()
	return postgres.Migrate(st.DB())
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		version, err := migrateDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		cmd.Printf("✓ Database schema at version %d\n", version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
