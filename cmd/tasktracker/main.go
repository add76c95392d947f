// Command tasktracker serves the shared task tracker over HTTP.
package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/chepyr/go-task-share/internal/config"
	"github.com/chepyr/go-task-share/internal/db"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tasktracker",
	Short: "Task tracker with sharing, priorities and reminders",
	// usage is noise for runtime failures such as a refused database
	SilenceUsage: true,
}

func initDB(cfg *config.Config) (*sql.DB, error) {
	dbConn, err := db.Connect(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to %s database", cfg.DBDriver)
	return dbConn, nil
}

func closeDB(dbConn *sql.DB) {
	if err := dbConn.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	}
}
