package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"entgo.io/ent/dialect"
)

const (
	tableCorrections = "corrections"
	tableLabReports  = "lab_reports"
)

// {{id}} is replaced with the dialect's auto-increment primary key column type.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS corrections (
		id {{id}},
		original_text TEXT NOT NULL,
		corrected_text TEXT NOT NULL,
		correction_type VARCHAR(32) NOT NULL,
		frequency INTEGER NOT NULL DEFAULT 1,
		confidence_score INTEGER NOT NULL DEFAULT 85,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	// OnConflict upserts in Upsert target this index.
	`CREATE UNIQUE INDEX IF NOT EXISTS corrections_triple_key
		ON corrections (original_text, corrected_text, correction_type)`,
	`CREATE INDEX IF NOT EXISTS corrections_lookup_idx ON corrections (correction_type, original_text)`,
	`CREATE INDEX IF NOT EXISTS corrections_confidence_idx ON corrections (confidence_score)`,
	`CREATE TABLE IF NOT EXISTS lab_reports (
		id VARCHAR(36) PRIMARY KEY,
		batch_id VARCHAR(36),
		source_path TEXT NOT NULL,
		status VARCHAR(16) NOT NULL,
		report_json TEXT,
		error_message TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS lab_reports_batch_idx ON lab_reports (batch_id)`,
}

// Migrate creates the corrections and lab_reports tables and their indexes when missing.
func (db *DB) Migrate(ctx context.Context) error {
	idType := "BIGSERIAL PRIMARY KEY"
	if db.Dialect == dialect.SQLite {
		idType = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	for _, stmt := range schemaStatements {
		query := strings.ReplaceAll(stmt, "{{id}}", idType)
		var res sql.Result
		if err := db.Driver.Exec(ctx, query, []any{}, &res); err != nil {
			db.logger.Error("migration failed", "query", query, "error", err)
			return fmt.Errorf("migrate: %w", err)
		}
	}
	db.logger.Info("db.migrate.ok", "tables", []string{tableCorrections, tableLabReports})
	return nil
}
