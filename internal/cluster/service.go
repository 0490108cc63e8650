package cluster

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/pastrop/feeaudit/internal/detect"
	"github.com/pastrop/feeaudit/internal/domain"
)

// RunOptions selects the algorithm and its tuning for one analysis.
type RunOptions struct {
	Algorithm domain.ClusterAlgorithm
	Sorting   SortingParams
	KMeans    KMeansParams
}

// RunOutput pairs the cluster report with the columns the series were
// pulled from, so callers can surface what was actually analyzed.
type RunOutput struct {
	Report           *domain.ClusterReport `json:"report"`
	AmountColumn     domain.DetectedColumn `json:"amount_column"`
	CommissionColumn domain.DetectedColumn `json:"commission_column"`
}

// Service discovers commission-rate structure in loaded statements.
type Service struct {
	log zerolog.Logger
}

func NewService(log zerolog.Logger) *Service {
	return &Service{log: log.With().Str("component", "cluster").Logger()}
}

// Run detects the amount and commission columns, extracts both series
// and hands them to the selected algorithm. An empty algorithm means
// the sorting scan. Cells that fail to parse become NaN and fall out
// as invalid points inside the analyzers.
func (s *Service) Run(rows []domain.TransactionRow, opts RunOptions) (*RunOutput, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("cluster: no transactions to process")
	}

	detection := detect.DetectColumns(rows[0].Columns)
	amountCol, ok := detection.Column(domain.FieldAmount)
	if !ok {
		return nil, fmt.Errorf("cluster: no amount column detected among %v", rows[0].Columns)
	}
	commissionCol, ok := detection.Column(domain.FieldCommission)
	if !ok {
		return nil, fmt.Errorf("cluster: no commission column detected among %v", rows[0].Columns)
	}

	amounts, commissions := Series(rows, amountCol, commissionCol)
	s.log.Info().
		Str("amount_column", amountCol).
		Str("commission_column", commissionCol).
		Int("rows", len(rows)).
		Str("algorithm", string(opts.Algorithm)).
		Msg("rate series extracted")

	var (
		report *domain.ClusterReport
		err    error
	)
	switch opts.Algorithm {
	case domain.AlgorithmKMeans:
		report, err = AnalyzeKMeans(amounts, commissions, opts.KMeans)
	case domain.AlgorithmSorting, "":
		report, err = AnalyzeSorting(amounts, commissions, opts.Sorting)
	default:
		return nil, fmt.Errorf("cluster: unknown algorithm %q", opts.Algorithm)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int("clusters", report.ClusterCount).
		Int("outliers", report.OutlierCount).
		Int("valid", report.ValidTransactions).
		Msg("analysis complete")

	return &RunOutput{
		Report:           report,
		AmountColumn:     detection.Columns[domain.FieldAmount],
		CommissionColumn: detection.Columns[domain.FieldCommission],
	}, nil
}

// Series converts rows into the parallel amount and commission slices
// the analyzers take. Non-numeric cells come out as NaN.
func Series(rows []domain.TransactionRow, amountColumn, commissionColumn string) (amounts, commissions []float64) {
	amounts = make([]float64, len(rows))
	commissions = make([]float64, len(rows))
	for i, row := range rows {
		amounts[i] = floatOrNaN(row.Value(amountColumn))
		commissions[i] = floatOrNaN(row.Value(commissionColumn))
	}
	return amounts, commissions
}

func floatOrNaN(v domain.Value) float64 {
	if f, ok := v.Float64(); ok {
		return f
	}
	return math.NaN()
}
