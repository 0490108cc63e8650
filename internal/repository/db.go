package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

// Fee amounts are stored as TEXT and round-tripped through decimal so no
// value picks up float drift on the way in or out of the database.
func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			source_name TEXT NOT NULL,
			source_hash TEXT NOT NULL,
			total_rows INTEGER NOT NULL,
			valid_rows INTEGER NOT NULL,
			params TEXT,
			confidence REAL NOT NULL DEFAULT 0,
			summary TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_source_hash ON runs(source_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,

		`CREATE TABLE IF NOT EXISTS rate_clusters (
			run_id TEXT NOT NULL,
			cluster_id INTEGER NOT NULL,
			rate_percent REAL NOT NULL,
			minimal_fee REAL,
			transaction_count INTEGER NOT NULL,
			percentage_of_total REAL NOT NULL,
			fit_quality REAL,
			apparent_rate_percent REAL,
			rate_std_dev REAL,
			min_rate_percent REAL,
			max_rate_percent REAL,
			amount_min REAL,
			amount_max REAL,
			PRIMARY KEY (run_id, cluster_id),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rate_clusters_run ON rate_clusters(run_id)`,

		`CREATE TABLE IF NOT EXISTS verifications (
			run_id TEXT NOT NULL,
			row_index INTEGER NOT NULL,
			transaction_id TEXT NOT NULL,
			overall_status TEXT NOT NULL,
			error_count INTEGER NOT NULL,
			confidence REAL NOT NULL,
			assumptions TEXT,
			missing_data TEXT,
			checks TEXT NOT NULL,
			PRIMARY KEY (run_id, row_index),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verifications_run ON verifications(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_verifications_status ON verifications(overall_status)`,

		`CREATE TABLE IF NOT EXISTS discrepancies (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			transaction_id TEXT NOT NULL,
			fee_type TEXT NOT NULL,
			expected TEXT NOT NULL,
			actual TEXT NOT NULL,
			difference TEXT NOT NULL,
			status TEXT NOT NULL,
			severity TEXT NOT NULL,
			description TEXT NOT NULL,
			detected_at DATETIME NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_discrepancies_run ON discrepancies(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_discrepancies_fee_type ON discrepancies(fee_type)`,
		`CREATE INDEX IF NOT EXISTS idx_discrepancies_severity ON discrepancies(severity)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(60, len(stmt))], err)
		}
	}

	return nil
}
