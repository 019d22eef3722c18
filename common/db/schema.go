package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

//go:embed schema.sql
var schemaSQL string

// ApplySchema creates the tables the service needs. Every statement is
// IF NOT EXISTS so this is safe to run on every startup.
func ApplySchema(database *DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Simple protocol: the schema file holds multiple statements
	if _, err := database.Exec(ctx, schemaSQL, pgx.QueryExecModeSimpleProtocol); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	database.log.Info("database schema applied")
	return nil
}
