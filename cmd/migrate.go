package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blogem/devkb/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		if err := database.InitializeDatabase(cfg.DatabasePath); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		defer database.CloseDB()

		fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date\n", cfg.DatabasePath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
