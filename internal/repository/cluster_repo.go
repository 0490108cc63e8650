package repository

import (
	"database/sql"
	"fmt"

	"github.com/pastrop/feeaudit/internal/domain"
)

type ClusterRepo struct {
	db *sql.DB
}

func NewClusterRepo(db *sql.DB) *ClusterRepo {
	return &ClusterRepo{db: db}
}

func (r *ClusterRepo) InsertClusters(runID string, clusters []domain.RateCluster) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO rate_clusters
		(run_id, cluster_id, rate_percent, minimal_fee, transaction_count,
		 percentage_of_total, fit_quality, apparent_rate_percent, rate_std_dev,
		 min_rate_percent, max_rate_percent, amount_min, amount_max)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range clusters {
		c := &clusters[i]
		var amountMin, amountMax any
		if len(c.AmountRange) == 2 {
			amountMin = c.AmountRange[0]
			amountMax = c.AmountRange[1]
		}
		res, err := stmt.Exec(
			runID, c.ID, c.RatePercent, nullableFloat(c.MinimalFee),
			c.TransactionCount, c.PercentageOfTotal, nullableFloat(c.FitQuality),
			nullableFloat(c.ApparentRatePercent), nullableFloat(c.RateStdDev),
			nullableFloat(c.MinRatePercent), nullableFloat(c.MaxRatePercent),
			amountMin, amountMax,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert cluster %d: %w", c.ID, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *ClusterRepo) GetByRunID(runID string) ([]domain.RateCluster, error) {
	rows, err := r.db.Query(
		"SELECT * FROM rate_clusters WHERE run_id = ? ORDER BY cluster_id", runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clusters []domain.RateCluster
	for rows.Next() {
		c, err := scanRateCluster(rows)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, *c)
	}
	return clusters, rows.Err()
}

// --- helpers ---

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func scanRateCluster(rows *sql.Rows) (*domain.RateCluster, error) {
	var c domain.RateCluster
	var runID string
	var minimalFee, fitQuality, apparentRate, stdDev sql.NullFloat64
	var minRate, maxRate, amountMin, amountMax sql.NullFloat64

	err := rows.Scan(
		&runID, &c.ID, &c.RatePercent, &minimalFee, &c.TransactionCount,
		&c.PercentageOfTotal, &fitQuality, &apparentRate, &stdDev,
		&minRate, &maxRate, &amountMin, &amountMax,
	)
	if err != nil {
		return nil, err
	}

	c.MinimalFee = floatPtr(minimalFee)
	c.FitQuality = floatPtr(fitQuality)
	c.ApparentRatePercent = floatPtr(apparentRate)
	c.RateStdDev = floatPtr(stdDev)
	c.MinRatePercent = floatPtr(minRate)
	c.MaxRatePercent = floatPtr(maxRate)
	if amountMin.Valid && amountMax.Valid {
		c.AmountRange = []float64{amountMin.Float64, amountMax.Float64}
	}

	return &c, nil
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
