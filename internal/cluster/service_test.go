package cluster

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pastrop/feeaudit/internal/domain"
)

func flatRateRows(n int, rate string) []domain.TransactionRow {
	r := decimal.RequireFromString(rate)
	rows := make([]domain.TransactionRow, n)
	for i := range rows {
		amount := decimal.NewFromInt(int64(100 + i*10))
		commission := amount.Mul(r)
		rows[i] = domain.TransactionRow{
			Index:   i + 1,
			Columns: []string{"amount", "commission"},
			Values: map[string]domain.Value{
				"amount":     domain.NumberValue(amount, amount.String()),
				"commission": domain.NumberValue(commission, commission.String()),
			},
		}
	}
	return rows
}

func TestServiceRun_SortingDefault(t *testing.T) {
	rows := flatRateRows(20, "0.038")

	svc := NewService(zerolog.Nop())
	out, err := svc.Run(rows, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.AlgorithmSorting, out.Report.Algorithm)
	assert.Equal(t, 20, out.Report.TotalTransactions)
	require.Len(t, out.Report.Clusters, 1)
	assert.InDelta(t, 3.8, out.Report.Clusters[0].RatePercent, 0.001)

	assert.Equal(t, "amount", out.AmountColumn.Column)
	assert.Equal(t, "commission", out.CommissionColumn.Column)
}

func TestServiceRun_KMeans(t *testing.T) {
	rows := flatRateRows(30, "0.05")

	svc := NewService(zerolog.Nop())
	out, err := svc.Run(rows, RunOptions{
		Algorithm: domain.AlgorithmKMeans,
		KMeans:    KMeansParams{NumClusters: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.AlgorithmKMeans, out.Report.Algorithm)
	require.Len(t, out.Report.Clusters, 1)
	assert.InDelta(t, 5.0, out.Report.Clusters[0].RatePercent, 0.01)
}

func TestServiceRun_NoCommissionColumn(t *testing.T) {
	rows := []domain.TransactionRow{{
		Index:   1,
		Columns: []string{"amount", "merchant_name"},
		Values: map[string]domain.Value{
			"amount":        domain.NumberValue(decimal.NewFromInt(100), "100"),
			"merchant_name": domain.TextValue("ACME"),
		},
	}}

	svc := NewService(zerolog.Nop())
	_, err := svc.Run(rows, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no commission column")
}

func TestServiceRun_UnknownAlgorithm(t *testing.T) {
	svc := NewService(zerolog.Nop())
	_, err := svc.Run(flatRateRows(5, "0.038"), RunOptions{Algorithm: "dbscan"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown algorithm")
}

func TestServiceRun_Empty(t *testing.T) {
	svc := NewService(zerolog.Nop())
	_, err := svc.Run(nil, RunOptions{})
	assert.Error(t, err)
}

func TestSeries_UnparseableBecomesNaN(t *testing.T) {
	rows := []domain.TransactionRow{
		{
			Columns: []string{"amount", "commission"},
			Values: map[string]domain.Value{
				"amount":     domain.NumberValue(decimal.NewFromInt(100), "100"),
				"commission": domain.TextValue("n/a"),
			},
		},
		{
			Columns: []string{"amount", "commission"},
			Values: map[string]domain.Value{
				"amount": domain.NullValue(),
			},
		},
	}

	amounts, commissions := Series(rows, "amount", "commission")
	assert.Equal(t, 100.0, amounts[0])
	assert.True(t, math.IsNaN(commissions[0]))
	assert.True(t, math.IsNaN(amounts[1]))
	assert.True(t, math.IsNaN(commissions[1]))
}

func TestRenderText(t *testing.T) {
	fee := 0.35
	fit := 0.97
	minRate := 3.75
	maxRate := 3.89
	std := 0.02
	dominant := 3.8

	report := &domain.ClusterReport{
		Algorithm:         domain.AlgorithmKMeans,
		TotalTransactions: 100,
		ValidTransactions: 98,
		OutlierCount:      2,
		OutlierPercentage: 2.0,
		ClusterCount:      2,
		Clusters: []domain.RateCluster{
			{
				ID:                0,
				RatePercent:       3.8,
				TransactionCount:  80,
				PercentageOfTotal: 81.6,
				MinRatePercent:    &minRate,
				MaxRatePercent:    &maxRate,
				RateStdDev:        &std,
			},
			{
				ID:                1,
				RatePercent:       5.0,
				MinimalFee:        &fee,
				TransactionCount:  18,
				PercentageOfTotal: 18.4,
				FitQuality:        &fit,
				AmountRange:       []float64{1.5, 112.4},
			},
		},
		Summary: domain.RateSummary{DominantRatePercent: &dominant},
	}

	text := RenderText(report, TextReportMeta{
		InputFile:   "statement.csv",
		GeneratedAt: time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC),
	})

	assert.Contains(t, text, "RATE CLUSTER ANALYSIS")
	assert.Contains(t, text, "Input: statement.csv")
	assert.Contains(t, text, "* 3.8000% - 80 transactions (81.6%)")
	assert.Contains(t, text, "Range: 3.7500% - 3.8900%")
	assert.Contains(t, text, "* 5.0000% + 0.35 minimal fee - 18 transactions (18.4%)")
	assert.Contains(t, text, "Fit quality (R^2): 0.9700")
	assert.Contains(t, text, "Amount range: 1.50 - 112.40")
	assert.Contains(t, text, "Dominant rate:         3.8%")
}

func TestRenderText_ErrorReport(t *testing.T) {
	report := &domain.ClusterReport{
		Algorithm:         domain.AlgorithmSorting,
		TotalTransactions: 3,
		Error:             "no valid transactions: every row has a non-positive or non-finite amount",
	}

	text := RenderText(report, TextReportMeta{GeneratedAt: time.Now()})
	assert.Contains(t, text, "ANALYSIS STOPPED")
	assert.Contains(t, text, "no valid transactions")
	assert.NotContains(t, text, "RATE CLUSTERS")
}
