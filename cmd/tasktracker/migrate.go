package main

import (
	"fmt"
	"log"

	"github.com/chepyr/go-task-share/internal/config"
	"github.com/chepyr/go-task-share/internal/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	dbConn, err := initDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer closeDB(dbConn)

	if err := db.Migrate(cmd.Context(), dbConn, cfg.DBDriver); err != nil {
		return err
	}
	log.Println("Schema applied")
	return nil
}
