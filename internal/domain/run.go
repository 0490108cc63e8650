package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RunKind string

const (
	RunVerification RunKind = "verification"
	RunClustering   RunKind = "clustering"
)

type RunSummary struct {
	CorrectCount      int             `json:"correct_count"`
	ErroneousCount    int             `json:"erroneous_count"`
	QuestionableCount int             `json:"questionable_count"`
	MissingDataCount  int             `json:"missing_data_count"`
	TotalDiscrepancy  decimal.Decimal `json:"total_discrepancy"`
	AccuracyRate      float64         `json:"accuracy_rate"`
	ClusterCount      int             `json:"cluster_count"`
	OutlierCount      int             `json:"outlier_count"`
}

// AnalysisRun records one ingested statement and the analysis performed
// on it. SourceHash makes re-submissions of the same bytes detectable.
type AnalysisRun struct {
	ID         string      `json:"id"`
	Kind       RunKind     `json:"kind"`
	SourceName string      `json:"source_name"`
	SourceHash string      `json:"source_hash"`
	TotalRows  int         `json:"total_rows"`
	ValidRows  int         `json:"valid_rows"`
	Params     string      `json:"params,omitempty"`
	Confidence float64     `json:"confidence"`
	Summary    *RunSummary `json:"summary,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}
