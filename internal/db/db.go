package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
)

// Supported database/sql driver names. The drivers register themselves
// through the imports in errors.go.
const (
	DriverPostgres     = "postgres"
	DriverSQLite3      = "sqlite3" // mattn/go-sqlite3, cgo
	DriverSQLitePureGo = "sqlite"  // modernc.org/sqlite
)

//go:embed schema_postgres.sql schema_sqlite.sql
var schemaFS embed.FS

func IsSQLite(driverName string) bool {
	return driverName == DriverSQLite3 || driverName == DriverSQLitePureGo
}

func Connect(driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if IsSQLite(driverName) {
		// sqlite allows one writer; a single connection serializes
		// transactions instead of failing them with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		return db, nil
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return db, nil
}

// Migrate applies the embedded schema for driverName. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB, driverName string) error {
	var file string
	switch {
	case driverName == DriverPostgres:
		file = "schema_postgres.sql"
	case IsSQLite(driverName):
		file = "schema_sqlite.sql"
	default:
		return fmt.Errorf("unsupported driver %q", driverName)
	}

	schemaSQL, err := schemaFS.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schemaSQL)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
