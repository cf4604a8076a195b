package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate runs each CREATE TABLE IF NOT EXISTS statement in order.
func Migrate(ctx context.Context, db *sql.DB, stmts ...string) error {
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
