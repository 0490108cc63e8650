package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pastrop/feeaudit/internal/domain"
)

type RunRepo struct {
	db *sql.DB
}

func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{db: db}
}

// ExistsBySourceHash checks whether the same input bytes have already been
// analyzed (idempotency check).
func (r *RunRepo) ExistsBySourceHash(hash string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM runs WHERE source_hash = ?", hash,
	).Scan(&count)
	return count > 0, err
}

func (r *RunRepo) Insert(run *domain.AnalysisRun) error {
	var params any
	if run.Params != "" {
		params = run.Params
	}
	var summary any
	if run.Summary != nil {
		b, err := json.Marshal(run.Summary)
		if err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
		summary = string(b)
	}

	_, err := r.db.Exec(
		`INSERT INTO runs
		(id, kind, source_name, source_hash, total_rows, valid_rows, params,
		 confidence, summary, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		run.ID, string(run.Kind), run.SourceName, run.SourceHash,
		run.TotalRows, run.ValidRows, params, run.Confidence, summary,
		run.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *RunRepo) GetByID(id string) (*domain.AnalysisRun, error) {
	row := r.db.QueryRow("SELECT * FROM runs WHERE id = ?", id)
	return scanRun(row)
}

type RunFilter struct {
	Kind  string
	Page  int
	Limit int
}

func (r *RunRepo) List(f RunFilter) ([]domain.AnalysisRun, int, error) {
	where, args := buildRunWhere(f)

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM runs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := "SELECT * FROM runs" + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var runs []domain.AnalysisRun
	for rows.Next() {
		run, err := scanRunRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, total, rows.Err()
}

// RunStats holds aggregate counters for the dashboard.
type RunStats struct {
	TotalRuns        int     `json:"total_runs"`
	VerificationRuns int     `json:"verification_runs"`
	ClusteringRuns   int     `json:"clustering_runs"`
	RowsAnalyzed     int     `json:"rows_analyzed"`
	AvgConfidence    float64 `json:"avg_confidence"`
}

func (r *RunRepo) GetStats() (*RunStats, error) {
	s := &RunStats{}
	err := r.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN kind='verification' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind='clustering' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(total_rows), 0),
			COALESCE(AVG(confidence), 0)
		FROM runs
	`).Scan(&s.TotalRuns, &s.VerificationRuns, &s.ClusteringRuns,
		&s.RowsAnalyzed, &s.AvgConfidence)
	return s, err
}

// --- helpers ---

func buildRunWhere(f RunFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, f.Kind)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanRun(row *sql.Row) (*domain.AnalysisRun, error) {
	var run domain.AnalysisRun
	var kind, createdAt string
	var paramsNull, summaryNull sql.NullString

	err := row.Scan(
		&run.ID, &kind, &run.SourceName, &run.SourceHash,
		&run.TotalRows, &run.ValidRows, &paramsNull, &run.Confidence,
		&summaryNull, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	return finishRun(&run, kind, createdAt, paramsNull, summaryNull)
}

func scanRunRows(rows *sql.Rows) (*domain.AnalysisRun, error) {
	var run domain.AnalysisRun
	var kind, createdAt string
	var paramsNull, summaryNull sql.NullString

	err := rows.Scan(
		&run.ID, &kind, &run.SourceName, &run.SourceHash,
		&run.TotalRows, &run.ValidRows, &paramsNull, &run.Confidence,
		&summaryNull, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	return finishRun(&run, kind, createdAt, paramsNull, summaryNull)
}

func finishRun(run *domain.AnalysisRun, kind, createdAt string, paramsNull, summaryNull sql.NullString) (*domain.AnalysisRun, error) {
	run.Kind = domain.RunKind(kind)
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if paramsNull.Valid {
		run.Params = paramsNull.String
	}
	if summaryNull.Valid && summaryNull.String != "" {
		var s domain.RunSummary
		if err := json.Unmarshal([]byte(summaryNull.String), &s); err != nil {
			return nil, fmt.Errorf("unmarshal summary: %w", err)
		}
		run.Summary = &s
	}
	return run, nil
}
