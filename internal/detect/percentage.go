package detect

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pastrop/feeaudit/internal/domain"
)

const (
	// percentageSampleSize caps how many valid rows feed each column average.
	percentageSampleSize = 50
	// percentageTolerance is the allowed distance from a contract target,
	// in percentage points.
	percentageTolerance = 0.2
)

type ColumnPercentage struct {
	AvgPercentage float64 `json:"avg_percentage"`
	SampleCount   int     `json:"sample_count"`
	Matches       string  `json:"matches"`
}

type PercentageResult struct {
	RemunerationColumn   string                      `json:"remuneration_column,omitempty"`
	RollingReserveColumn string                      `json:"rolling_reserve_column,omitempty"`
	Assumptions          []string                    `json:"assumptions,omitempty"`
	Analysis             map[string]ColumnPercentage `json:"analysis,omitempty"`
}

// ClassifyByPercentage tells apart commission-like columns by what share
// of the transaction amount they actually carry. A column averaging the
// contract remuneration rate is the remuneration column no matter what
// it is called; same for the rolling reserve rate. Name-based detection
// defers to this signal.
func ClassifyByPercentage(rows []domain.TransactionRow, amountColumn string, targetRemunerationPct, targetReservePct float64) *PercentageResult {
	res := &PercentageResult{Analysis: map[string]ColumnPercentage{}}
	if amountColumn == "" || len(rows) == 0 {
		return res
	}

	var candidates []string
	for _, col := range rows[0].Columns {
		if col == amountColumn || strings.HasPrefix(col, "_") {
			continue
		}
		lower := strings.ToLower(col)
		if strings.Contains(lower, "commission") || strings.HasPrefix(lower, "comm") {
			candidates = append(candidates, col)
		}
	}
	if len(candidates) == 0 {
		return res
	}

	hundred := decimal.NewFromInt(100)
	for _, col := range candidates {
		var sum float64
		var count int
		for _, row := range rows {
			if count >= percentageSampleSize {
				break
			}
			amount, ok := row.Value(amountColumn).Decimal()
			if !ok || !amount.IsPositive() {
				continue
			}
			comm, ok := row.Value(col).Decimal()
			if !ok || comm.IsZero() {
				continue
			}
			pct, _ := comm.Div(amount).Mul(hundred).Float64()
			sum += pct
			count++
		}
		if count == 0 {
			continue
		}

		avg := sum / float64(count)
		entry := ColumnPercentage{
			AvgPercentage: math.Round(avg*1000) / 1000,
			SampleCount:   count,
			Matches:       "unknown",
		}
		switch {
		case math.Abs(avg-targetRemunerationPct) < percentageTolerance:
			entry.Matches = "remuneration"
			res.RemunerationColumn = col
			res.Assumptions = append(res.Assumptions, fmt.Sprintf(
				"Column '%s' averages %.2f%% of transaction amount, assumed to be Remuneration (contract: %v%%)",
				col, avg, targetRemunerationPct))
		case math.Abs(avg-targetReservePct) < percentageTolerance:
			entry.Matches = "rolling_reserve"
			res.RollingReserveColumn = col
			res.Assumptions = append(res.Assumptions, fmt.Sprintf(
				"Column '%s' averages %.2f%% of transaction amount, assumed to be Rolling Reserve (contract: %v%%)",
				col, avg, targetReservePct))
		}
		res.Analysis[col] = entry
	}
	return res
}
