package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pastrop/feeaudit/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func insertRun(t *testing.T, repo *RunRepo, id string, kind domain.RunKind, created time.Time) {
	t.Helper()
	err := repo.Insert(&domain.AnalysisRun{
		ID:         id,
		Kind:       kind,
		SourceName: "july_statement",
		SourceHash: "hash-" + id,
		TotalRows:  10,
		ValidRows:  9,
		Confidence: 0.9,
		CreatedAt:  created,
	})
	require.NoError(t, err)
}

func floatp(v float64) *float64 {
	return &v
}

func TestRunRepo_InsertAndGet(t *testing.T) {
	db := openTestDB(t)
	repo := NewRunRepo(db)

	created := time.Date(2025, 7, 15, 10, 30, 0, 0, time.UTC)
	run := &domain.AnalysisRun{
		ID:         "run-1",
		Kind:       domain.RunVerification,
		SourceName: "july_statement",
		SourceHash: "a1b2c3d4e5f60708",
		TotalRows:  120,
		ValidRows:  118,
		Params:     `{"tolerance":"0.01"}`,
		Confidence: 0.93,
		Summary: &domain.RunSummary{
			CorrectCount:     110,
			ErroneousCount:   6,
			MissingDataCount: 2,
			TotalDiscrepancy: decimal.RequireFromString("14.62"),
			AccuracyRate:     94.8,
		},
		CreatedAt: created,
	}
	require.NoError(t, repo.Insert(run))

	got, err := repo.GetByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunVerification, got.Kind)
	assert.Equal(t, "july_statement", got.SourceName)
	assert.Equal(t, 120, got.TotalRows)
	assert.Equal(t, `{"tolerance":"0.01"}`, got.Params)
	assert.Equal(t, 0.93, got.Confidence)
	assert.True(t, created.Equal(got.CreatedAt))
	require.NotNil(t, got.Summary)
	assert.Equal(t, 110, got.Summary.CorrectCount)
	assert.Equal(t, "14.62", got.Summary.TotalDiscrepancy.String())

	_, err = repo.GetByID("no-such-run")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRunRepo_ExistsBySourceHash(t *testing.T) {
	db := openTestDB(t)
	repo := NewRunRepo(db)

	exists, err := repo.ExistsBySourceHash("hash-run-1")
	require.NoError(t, err)
	assert.False(t, exists)

	insertRun(t, repo, "run-1", domain.RunVerification, time.Now().UTC())

	exists, err = repo.ExistsBySourceHash("hash-run-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRunRepo_List(t *testing.T) {
	db := openTestDB(t)
	repo := NewRunRepo(db)

	base := time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC)
	insertRun(t, repo, "run-1", domain.RunVerification, base)
	insertRun(t, repo, "run-2", domain.RunClustering, base.Add(time.Hour))
	insertRun(t, repo, "run-3", domain.RunVerification, base.Add(2*time.Hour))

	runs, total, err := repo.List(RunFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, runs, 3)
	// Newest first.
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, "run-1", runs[2].ID)

	runs, total, err = repo.List(RunFilter{Kind: "verification"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, runs, 2)

	runs, total, err = repo.List(RunFilter{Page: 2, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-2", runs[0].ID)
}

func TestRunRepo_GetStats(t *testing.T) {
	db := openTestDB(t)
	repo := NewRunRepo(db)

	insertRun(t, repo, "run-1", domain.RunVerification, time.Now().UTC())
	insertRun(t, repo, "run-2", domain.RunClustering, time.Now().UTC())

	stats, err := repo.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRuns)
	assert.Equal(t, 1, stats.VerificationRuns)
	assert.Equal(t, 1, stats.ClusteringRuns)
	assert.Equal(t, 20, stats.RowsAnalyzed)
	assert.InDelta(t, 0.9, stats.AvgConfidence, 1e-9)
}

func TestClusterRepo_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	runRepo := NewRunRepo(db)
	repo := NewClusterRepo(db)

	insertRun(t, runRepo, "run-1", domain.RunClustering, time.Now().UTC())

	clusters := []domain.RateCluster{
		{
			ID:                  0,
			RatePercent:         3.8,
			TransactionCount:    80,
			PercentageOfTotal:   80,
			ApparentRatePercent: floatp(3.81),
			RateStdDev:          floatp(0.02),
			MinRatePercent:      floatp(3.75),
			MaxRatePercent:      floatp(3.89),
		},
		{
			ID:                1,
			RatePercent:       5.0,
			MinimalFee:        floatp(0.35),
			TransactionCount:  20,
			PercentageOfTotal: 20,
			FitQuality:        floatp(0.97),
			AmountRange:       []float64{1.5, 112.4},
		},
	}

	inserted, err := repo.InsertClusters("run-1", clusters)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	got, err := repo.GetByRunID("run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 3.8, got[0].RatePercent)
	assert.Nil(t, got[0].MinimalFee)
	assert.Nil(t, got[0].FitQuality)
	require.NotNil(t, got[0].RateStdDev)
	assert.Equal(t, 0.02, *got[0].RateStdDev)
	assert.Nil(t, got[0].AmountRange)

	assert.Equal(t, 5.0, got[1].RatePercent)
	require.NotNil(t, got[1].MinimalFee)
	assert.Equal(t, 0.35, *got[1].MinimalFee)
	require.NotNil(t, got[1].FitQuality)
	assert.Equal(t, 0.97, *got[1].FitQuality)
	assert.Equal(t, []float64{1.5, 112.4}, got[1].AmountRange)
}

func TestClusterRepo_RequiresRun(t *testing.T) {
	db := openTestDB(t)
	repo := NewClusterRepo(db)

	_, err := repo.InsertClusters("missing-run", []domain.RateCluster{
		{ID: 0, RatePercent: 3.8, TransactionCount: 1, PercentageOfTotal: 100},
	})
	assert.Error(t, err)
}

func TestVerificationRepo_BulkInsertAndList(t *testing.T) {
	db := openTestDB(t)
	runRepo := NewRunRepo(db)
	repo := NewVerificationRepo(db)

	insertRun(t, runRepo, "run-1", domain.RunVerification, time.Now().UTC())

	actual := decimal.RequireFromString("5.00")
	diff := decimal.RequireFromString("1.20")
	verifications := []*domain.TransactionVerification{
		{
			TransactionID: "100045",
			Checks: map[domain.FeeType]domain.FeeCheck{
				domain.FeeRemuneration: {
					FeeType:    domain.FeeRemuneration,
					Expected:   decimal.RequireFromString("3.80"),
					Actual:     &actual,
					Difference: &diff,
					Status:     domain.FeeOvercharged,
				},
			},
			OverallStatus: domain.VerificationHasErrors,
			ErrorCount:    1,
			Confidence:    0.95,
		},
		{
			TransactionID: "100046",
			Checks: map[domain.FeeType]domain.FeeCheck{
				domain.FeeRemuneration: {
					FeeType:  domain.FeeRemuneration,
					Expected: decimal.RequireFromString("2.28"),
					Status:   domain.FeeMissing,
				},
			},
			OverallStatus: domain.VerificationQuestionable,
			ErrorCount:    0,
			Confidence:    0.4,
			Assumptions:   []string{"amount column detected as 'Сумма'"},
			MissingData:   []string{"commission"},
		},
		{
			TransactionID: "100047",
			Checks:        map[domain.FeeType]domain.FeeCheck{},
			OverallStatus: domain.VerificationCorrect,
			ErrorCount:    0,
			Confidence:    1.0,
		},
	}

	inserted, err := repo.BulkInsert("run-1", verifications)
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)

	got, total, err := repo.ListByRun("run-1", VerificationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, got, 3)

	// Statement order is preserved.
	assert.Equal(t, "100045", got[0].TransactionID)
	assert.Equal(t, "100046", got[1].TransactionID)
	assert.Equal(t, "100047", got[2].TransactionID)

	check := got[0].Checks[domain.FeeRemuneration]
	assert.Equal(t, "3.8", check.Expected.String())
	require.NotNil(t, check.Actual)
	assert.Equal(t, "5", check.Actual.String())
	assert.Equal(t, domain.FeeOvercharged, check.Status)

	assert.Equal(t, []string{"commission"}, got[1].MissingData)
	assert.Nil(t, got[0].Assumptions)

	got, total, err = repo.ListByRun("run-1", VerificationFilter{Status: "QUESTIONABLE"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, "100046", got[0].TransactionID)

	counts, err := repo.StatusCounts("run-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"CORRECT":      1,
		"HAS_ERRORS":   1,
		"QUESTIONABLE": 1,
	}, counts)
}

func TestDiscrepancyRepo(t *testing.T) {
	db := openTestDB(t)
	runRepo := NewRunRepo(db)
	repo := NewDiscrepancyRepo(db)

	insertRun(t, runRepo, "run-1", domain.RunVerification, time.Now().UTC())

	base := time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC)
	discs := []domain.Discrepancy{
		{
			ID:            "disc-1",
			RunID:         "run-1",
			TransactionID: "100045",
			FeeType:       domain.FeeRemuneration,
			Expected:      decimal.RequireFromString("3.80"),
			Actual:        decimal.RequireFromString("5.00"),
			Difference:    decimal.RequireFromString("1.20"),
			Status:        domain.FeeOvercharged,
			Severity:      domain.SeverityMedium,
			Description:   "remuneration: expected 3.80, charged 5.00",
			DetectedAt:    base,
		},
		{
			ID:            "disc-2",
			RunID:         "run-1",
			TransactionID: "100046",
			FeeType:       domain.FeeChargeback,
			Expected:      decimal.RequireFromString("50"),
			Actual:        decimal.RequireFromString("45"),
			Difference:    decimal.RequireFromString("-5"),
			Status:        domain.FeeUndercharged,
			Severity:      domain.SeverityHigh,
			Description:   "chargeback: expected 50, charged 45",
			DetectedAt:    base.Add(time.Minute),
		},
		{
			ID:            "disc-3",
			RunID:         "run-1",
			TransactionID: "100047",
			FeeType:       domain.FeeRemuneration,
			Expected:      decimal.RequireFromString("2.00"),
			Actual:        decimal.RequireFromString("2.31"),
			Difference:    decimal.RequireFromString("0.31"),
			Status:        domain.FeeOvercharged,
			Severity:      domain.SeverityLow,
			Description:   "remuneration: expected 2.00, charged 2.31",
			DetectedAt:    base.Add(2 * time.Minute),
		},
	}

	inserted, err := repo.BulkInsert(discs)
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)

	t.Run("list by run", func(t *testing.T) {
		got, total, err := repo.List(DiscrepancyFilter{RunID: "run-1"})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, got, 3)
		// Newest first.
		assert.Equal(t, "disc-3", got[0].ID)
		assert.Equal(t, "1.2", got[2].Difference.String())
	})

	t.Run("filter by severity", func(t *testing.T) {
		got, total, err := repo.List(DiscrepancyFilter{RunID: "run-1", Severity: "HIGH"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, got, 1)
		assert.Equal(t, domain.FeeChargeback, got[0].FeeType)
	})

	t.Run("get by transaction", func(t *testing.T) {
		got, err := repo.GetByTransactionID("100046")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "disc-2", got[0].ID)
	})

	t.Run("summary sums exactly", func(t *testing.T) {
		s, err := repo.GetSummary()
		require.NoError(t, err)
		assert.Equal(t, 3, s.TotalCount)
		assert.Equal(t, "6.51", s.TotalImpact.String())
		assert.Equal(t, 2, s.ByFeeType["remuneration"])
		assert.Equal(t, 1, s.ByFeeType["chargeback"])
		assert.Equal(t, 1, s.BySeverity["HIGH"])
		assert.Equal(t, 2, s.ByStatus["OVERCHARGED"])
		assert.Equal(t, "1.51", s.ImpactByFeeType["remuneration"].String())
		assert.Equal(t, "5", s.ImpactByFeeType["chargeback"].String())
	})

	t.Run("clear all", func(t *testing.T) {
		require.NoError(t, repo.ClearAll())
		_, total, err := repo.List(DiscrepancyFilter{})
		require.NoError(t, err)
		assert.Equal(t, 0, total)
	})
}
