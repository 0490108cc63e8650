package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pastrop/feeaudit/internal/domain"
)

type VerificationRepo struct {
	db *sql.DB
}

func NewVerificationRepo(db *sql.DB) *VerificationRepo {
	return &VerificationRepo{db: db}
}

// BulkInsert stores verification results in statement order. The row index
// is persisted so listings come back in the same order the rows went in.
func (r *VerificationRepo) BulkInsert(runID string, verifications []*domain.TransactionVerification) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO verifications
		(run_id, row_index, transaction_id, overall_status, error_count,
		 confidence, assumptions, missing_data, checks)
		VALUES (?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i, v := range verifications {
		checks, err := json.Marshal(v.Checks)
		if err != nil {
			return inserted, fmt.Errorf("marshal checks %d: %w", i, err)
		}
		res, err := stmt.Exec(
			runID, i, v.TransactionID, string(v.OverallStatus), v.ErrorCount,
			v.Confidence, marshalStrings(v.Assumptions), marshalStrings(v.MissingData),
			string(checks),
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

type VerificationFilter struct {
	Status string
	Page   int
	Limit  int
}

func (r *VerificationRepo) ListByRun(runID string, f VerificationFilter) ([]domain.TransactionVerification, int, error) {
	where := " WHERE run_id = ?"
	args := []any{runID}
	if f.Status != "" {
		where += " AND overall_status = ?"
		args = append(args, f.Status)
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM verifications"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := `SELECT transaction_id, overall_status, error_count, confidence,
		assumptions, missing_data, checks FROM verifications` +
		where + " ORDER BY row_index LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var verifications []domain.TransactionVerification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, 0, err
		}
		verifications = append(verifications, *v)
	}
	return verifications, total, rows.Err()
}

func (r *VerificationRepo) StatusCounts(runID string) (map[string]int, error) {
	rows, err := r.db.Query(
		"SELECT overall_status, COUNT(*) FROM verifications WHERE run_id = ? GROUP BY overall_status",
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// --- helpers ---

func marshalStrings(values []string) any {
	if len(values) == 0 {
		return nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return string(b)
}

func scanVerification(rows *sql.Rows) (*domain.TransactionVerification, error) {
	var v domain.TransactionVerification
	var status, checks string
	var assumptionsNull, missingNull sql.NullString

	err := rows.Scan(
		&v.TransactionID, &status, &v.ErrorCount, &v.Confidence,
		&assumptionsNull, &missingNull, &checks,
	)
	if err != nil {
		return nil, err
	}

	v.OverallStatus = domain.VerificationStatus(status)
	if err := json.Unmarshal([]byte(checks), &v.Checks); err != nil {
		return nil, fmt.Errorf("unmarshal checks: %w", err)
	}
	if assumptionsNull.Valid {
		if err := json.Unmarshal([]byte(assumptionsNull.String), &v.Assumptions); err != nil {
			return nil, fmt.Errorf("unmarshal assumptions: %w", err)
		}
	}
	if missingNull.Valid {
		if err := json.Unmarshal([]byte(missingNull.String), &v.MissingData); err != nil {
			return nil, fmt.Errorf("unmarshal missing data: %w", err)
		}
	}

	return &v, nil
}
