package verify

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pastrop/feeaudit/internal/domain"
)

// Category buckets a verified row for reporting.
type Category string

const (
	CategoryCorrect      Category = "correct"
	CategoryErroneous    Category = "erroneous"
	CategoryQuestionable Category = "questionable"
	CategoryMissingData  Category = "missing_data"
)

var feeTypeOrder = []domain.FeeType{
	domain.FeeRemuneration,
	domain.FeeRollingReserve,
	domain.FeeChargeback,
	domain.FeeRefund,
}

// Summary aggregates one verification run.
type Summary struct {
	TotalTransactions        int             `json:"total_transactions"`
	CorrectCount             int             `json:"correct_count"`
	ErroneousCount           int             `json:"erroneous_count"`
	QuestionableCount        int             `json:"questionable_count"`
	MissingDataCount         int             `json:"missing_data_count"`
	TotalDiscrepancy         decimal.Decimal `json:"total_discrepancy"`
	TotalDiscrepancyComplete decimal.Decimal `json:"total_discrepancy_complete_data_only"`
	AccuracyRate             float64         `json:"accuracy_rate"`
}

// HasMissingData reports whether any fee check on the row is MISSING.
func HasMissingData(v *domain.TransactionVerification) bool {
	for _, check := range v.Checks {
		if check.Status == domain.FeeMissing {
			return true
		}
	}
	return false
}

// Categorize buckets one row. Low confidence wins over everything: a
// finding we cannot trust is questionable, not erroneous.
func Categorize(v *domain.TransactionVerification, confidenceThreshold float64) Category {
	switch {
	case v.Confidence < confidenceThreshold:
		return CategoryQuestionable
	case v.ErrorCount > 0:
		return CategoryErroneous
	case HasMissingData(v):
		return CategoryMissingData
	default:
		return CategoryCorrect
	}
}

// Summarize folds per-row verifications into run totals. Discrepancy
// totals count erroneous rows only; the complete-data variant further
// excludes rows where any fee could not be read.
func Summarize(verifications []*domain.TransactionVerification, confidenceThreshold float64) Summary {
	s := Summary{
		TotalTransactions:        len(verifications),
		TotalDiscrepancy:         decimal.Zero,
		TotalDiscrepancyComplete: decimal.Zero,
	}
	for _, v := range verifications {
		switch Categorize(v, confidenceThreshold) {
		case CategoryQuestionable:
			s.QuestionableCount++
		case CategoryErroneous:
			s.ErroneousCount++
			missing := HasMissingData(v)
			for _, check := range v.Checks {
				if check.Difference == nil {
					continue
				}
				abs := check.Difference.Abs()
				s.TotalDiscrepancy = s.TotalDiscrepancy.Add(abs)
				if !missing {
					s.TotalDiscrepancyComplete = s.TotalDiscrepancyComplete.Add(abs)
				}
			}
		case CategoryMissingData:
			s.MissingDataCount++
		default:
			s.CorrectCount++
		}
	}
	if s.TotalTransactions > 0 {
		s.AccuracyRate = math.Round(float64(s.CorrectCount)/float64(s.TotalTransactions)*100*100) / 100
	}
	return s
}

// Discrepancies extracts persistable discrepancy records from the
// erroneous rows of a run.
func Discrepancies(runID string, verifications []*domain.TransactionVerification, confidenceThreshold float64, now time.Time) []domain.Discrepancy {
	var out []domain.Discrepancy
	for _, v := range verifications {
		if Categorize(v, confidenceThreshold) != CategoryErroneous {
			continue
		}
		for _, feeType := range feeTypeOrder {
			check, ok := v.Checks[feeType]
			if !ok || check.WithinTolerance || check.Status == domain.FeeMissing {
				continue
			}
			var diff, actual decimal.Decimal
			if check.Difference != nil {
				diff = *check.Difference
			}
			if check.Actual != nil {
				actual = *check.Actual
			}
			out = append(out, domain.Discrepancy{
				ID:            fmt.Sprintf("DISC-%s", uuid.NewString()[:8]),
				RunID:         runID,
				TransactionID: v.TransactionID,
				FeeType:       feeType,
				Expected:      check.Expected,
				Actual:        actual,
				Difference:    diff,
				Status:        check.Status,
				Severity:      SeverityFor(diff.Abs()),
				Description:   describeCheck(feeType, check),
				DetectedAt:    now,
			})
		}
	}
	return out
}

// SeverityFor grades a discrepancy by absolute size.
func SeverityFor(absDiff decimal.Decimal) domain.Severity {
	switch {
	case absDiff.GreaterThanOrEqual(decimal.NewFromInt(50)):
		return domain.SeverityCritical
	case absDiff.GreaterThanOrEqual(decimal.NewFromInt(5)):
		return domain.SeverityHigh
	case absDiff.GreaterThanOrEqual(decimal.NewFromFloat(0.5)):
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func describeCheck(feeType domain.FeeType, check domain.FeeCheck) string {
	label := strings.ReplaceAll(string(feeType), "_", " ")
	if check.Actual == nil {
		return fmt.Sprintf("%s expected %s but no value charged", label, check.Expected.StringFixed(2))
	}
	verb := "overcharged"
	if check.Status == domain.FeeUndercharged {
		verb = "undercharged"
	}
	var abs decimal.Decimal
	if check.Difference != nil {
		abs = check.Difference.Abs()
	}
	return fmt.Sprintf("%s %s by %s (expected %s, charged %s)",
		label, verb, abs.StringFixed(2), check.Expected.StringFixed(2), check.Actual.StringFixed(2))
}
