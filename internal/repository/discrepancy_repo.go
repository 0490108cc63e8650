package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pastrop/feeaudit/internal/domain"
)

type DiscrepancyRepo struct {
	db *sql.DB
}

func NewDiscrepancyRepo(db *sql.DB) *DiscrepancyRepo {
	return &DiscrepancyRepo{db: db}
}

func (r *DiscrepancyRepo) BulkInsert(discs []domain.Discrepancy) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO discrepancies
		(id, run_id, transaction_id, fee_type, expected, actual, difference,
		 status, severity, description, detected_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range discs {
		d := &discs[i]
		res, err := stmt.Exec(
			d.ID, d.RunID, d.TransactionID, string(d.FeeType),
			d.Expected.String(), d.Actual.String(), d.Difference.String(),
			string(d.Status), string(d.Severity), d.Description,
			d.DetectedAt.Format(time.RFC3339),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// GetByTransactionID returns all discrepancies recorded for a transaction,
// across every run it appeared in.
func (r *DiscrepancyRepo) GetByTransactionID(txnID string) ([]domain.Discrepancy, error) {
	rows, err := r.db.Query(
		"SELECT * FROM discrepancies WHERE transaction_id = ? ORDER BY detected_at DESC", txnID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDiscrepancies(rows)
}

type DiscrepancyFilter struct {
	RunID    string
	FeeType  string
	Status   string
	Severity string
	Page     int
	Limit    int
}

func (r *DiscrepancyRepo) List(f DiscrepancyFilter) ([]domain.Discrepancy, int, error) {
	where, args := buildDiscrepancyWhere(f)

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM discrepancies"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := "SELECT * FROM discrepancies" + where + " ORDER BY detected_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	discs, err := scanDiscrepancies(rows)
	return discs, total, err
}

type DiscrepancySummary struct {
	TotalCount      int                        `json:"total_count"`
	TotalImpact     decimal.Decimal            `json:"total_impact"`
	ByFeeType       map[string]int             `json:"by_fee_type"`
	BySeverity      map[string]int             `json:"by_severity"`
	ByStatus        map[string]int             `json:"by_status"`
	ImpactByFeeType map[string]decimal.Decimal `json:"impact_by_fee_type"`
}

// GetSummary aggregates all stored discrepancies. Impact totals are summed
// in Go from the TEXT columns so they stay exact.
func (r *DiscrepancyRepo) GetSummary() (*DiscrepancySummary, error) {
	s := &DiscrepancySummary{
		ByFeeType:       make(map[string]int),
		BySeverity:      make(map[string]int),
		ByStatus:        make(map[string]int),
		ImpactByFeeType: make(map[string]decimal.Decimal),
	}

	if err := r.db.QueryRow("SELECT COUNT(*) FROM discrepancies").Scan(&s.TotalCount); err != nil {
		return nil, err
	}

	if err := scanGroupCount(r.db, "fee_type", s.ByFeeType); err != nil {
		return nil, err
	}
	if err := scanGroupCount(r.db, "severity", s.BySeverity); err != nil {
		return nil, err
	}
	if err := scanGroupCount(r.db, "status", s.ByStatus); err != nil {
		return nil, err
	}

	rows, err := r.db.Query("SELECT fee_type, difference FROM discrepancies")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var feeType, diff string
		if err := rows.Scan(&feeType, &diff); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(diff)
		if err != nil {
			return nil, fmt.Errorf("parse difference %q: %w", diff, err)
		}
		s.TotalImpact = s.TotalImpact.Add(d.Abs())
		s.ImpactByFeeType[feeType] = s.ImpactByFeeType[feeType].Add(d.Abs())
	}

	return s, rows.Err()
}

// ClearAll removes all discrepancies (useful before re-running an analysis
// against a wiped database).
func (r *DiscrepancyRepo) ClearAll() error {
	_, err := r.db.Exec("DELETE FROM discrepancies")
	return err
}

// --- helpers ---

func buildDiscrepancyWhere(f DiscrepancyFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.RunID != "" {
		clauses = append(clauses, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.FeeType != "" {
		clauses = append(clauses, "fee_type = ?")
		args = append(args, f.FeeType)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.Severity != "" {
		clauses = append(clauses, "severity = ?")
		args = append(args, f.Severity)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanGroupCount(db *sql.DB, col string, m map[string]int) error {
	rows, err := db.Query(
		"SELECT " + col + ", COUNT(*) FROM discrepancies GROUP BY " + col,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var v int
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		m[k] = v
	}
	return rows.Err()
}

func scanDiscrepancies(rows *sql.Rows) ([]domain.Discrepancy, error) {
	var discs []domain.Discrepancy
	for rows.Next() {
		var d domain.Discrepancy
		var feeType, expected, actual, diff, status, sev, detectedAt string

		err := rows.Scan(
			&d.ID, &d.RunID, &d.TransactionID, &feeType,
			&expected, &actual, &diff, &status, &sev,
			&d.Description, &detectedAt,
		)
		if err != nil {
			return nil, err
		}

		d.FeeType = domain.FeeType(feeType)
		d.Expected, _ = decimal.NewFromString(expected)
		d.Actual, _ = decimal.NewFromString(actual)
		d.Difference, _ = decimal.NewFromString(diff)
		d.Status = domain.FeeStatus(status)
		d.Severity = domain.Severity(sev)
		d.DetectedAt, _ = time.Parse(time.RFC3339, detectedAt)

		discs = append(discs, d)
	}
	return discs, rows.Err()
}
