package fees

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/pastrop/feeaudit/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// DefaultTolerance is the comparison slack for fee equality, one cent.
var DefaultTolerance = decimal.NewFromFloat(0.01)

// DefaultQuestionableBelow marks rows whose verification confidence is
// too low to call the findings real errors.
const DefaultQuestionableBelow = 0.5

// VerifyOptions tunes row verification.
type VerifyOptions struct {
	Tolerance         decimal.Decimal
	QuestionableBelow float64
}

func (o *VerifyOptions) applyDefaults() {
	if o.Tolerance.IsZero() {
		o.Tolerance = DefaultTolerance
	}
	if o.QuestionableBelow <= 0 {
		o.QuestionableBelow = DefaultQuestionableBelow
	}
}

// CompareFees classifies an actual fee against its expectation within a
// tolerance. A nil actual means the statement carries no value to
// compare, which is reported as missing rather than as an error.
func CompareFees(feeType domain.FeeType, actual *decimal.Decimal, expected, tolerance decimal.Decimal) domain.FeeCheck {
	check := domain.FeeCheck{FeeType: feeType, Expected: expected}
	if actual == nil {
		check.Status = domain.FeeMissing
		return check
	}

	diff := actual.Sub(expected)
	check.Actual = actual
	check.Difference = &diff

	var pct decimal.Decimal
	switch {
	case !expected.IsZero():
		pct = diff.Div(expected).Mul(hundred).Round(2)
	case diff.IsZero():
		pct = decimal.Zero
	default:
		pct = hundred
	}
	check.DifferencePct = &pct

	switch {
	case diff.Abs().LessThanOrEqual(tolerance):
		check.Status = domain.FeeCorrect
		check.WithinTolerance = true
	case diff.GreaterThan(tolerance):
		check.Status = domain.FeeOvercharged
	default:
		check.Status = domain.FeeUndercharged
	}
	return check
}

// VerifyRow checks every applicable fee on one row against its
// expectation and grades the result. Checks whose source columns were
// never detected still run so the gap shows up as MISSING, with an
// assumption note explaining what could not be read.
func VerifyRow(row domain.TransactionRow, expected ExpectedFees, contract *domain.ContractTerms, detected map[domain.FieldType]domain.DetectedColumn, opts VerifyOptions) *domain.TransactionVerification {
	opts.applyDefaults()

	v := &domain.TransactionVerification{
		Checks:      make(map[domain.FeeType]domain.FeeCheck),
		MissingData: expected.MissingData,
	}
	v.TransactionID = resolveTransactionID(row, detected, &v.Assumptions)

	commissionCol := detected[domain.FieldCommission]
	if !commissionCol.Found() || !row.Has(commissionCol.Column) {
		v.Assumptions = append(v.Assumptions, "Commission column not found or detected")
	}
	addCheck(v, CompareFees(domain.FeeRemuneration, columnDecimal(row, commissionCol), expected.Remuneration, opts.Tolerance))

	reserveCol := detected[domain.FieldRollingReserve]
	if !reserveCol.Found() || !row.Has(reserveCol.Column) {
		v.Assumptions = append(v.Assumptions, "Rolling Reserve column not found or detected")
	}
	addCheck(v, CompareFees(domain.FeeRollingReserve, columnDecimal(row, reserveCol), expected.RollingReserve, opts.Tolerance))

	verifyEventFee(v, row, domain.FeeChargeback, expected.Chargeback, contract.ChargebackCost,
		detected[domain.FieldChargebackQty], detected[domain.FieldChargebackFeeCollected], detected[domain.FieldChargebackFee],
		"Chargeback fee expected but column not found", opts.Tolerance)
	verifyEventFee(v, row, domain.FeeRefund, expected.Refund, contract.RefundCost,
		detected[domain.FieldRefundQty], detected[domain.FieldRefundFeeCollected], detected[domain.FieldRefundFee],
		"Refund fee expected but column not found", opts.Tolerance)

	v.Confidence = VerificationConfidence(detectionScores(detected), len(v.Assumptions), v.ErrorCount)
	switch {
	case v.ErrorCount == 0:
		v.OverallStatus = domain.VerificationCorrect
	case v.Confidence < opts.QuestionableBelow:
		v.OverallStatus = domain.VerificationQuestionable
	default:
		v.OverallStatus = domain.VerificationHasErrors
	}
	return v
}

// verifyEventFee handles the chargeback and refund checks, which share
// one shape. When the statement carries both a quantity and a collected
// column, the expectation is quantity times the flat cost; otherwise the
// check runs only if the calculator expected a fee on this row.
func verifyEventFee(v *domain.TransactionVerification, row domain.TransactionRow, feeType domain.FeeType, expectedFee, flatCost decimal.Decimal, qtyCol, collectedCol, feeCol domain.DetectedColumn, missingNote string, tolerance decimal.Decimal) {
	if qtyCol.Found() && collectedCol.Found() && row.Has(qtyCol.Column) && row.Has(collectedCol.Column) {
		if qty, ok := row.Value(qtyCol.Column).Decimal(); ok && qty.IsPositive() {
			addCheck(v, CompareFees(feeType, columnDecimal(row, collectedCol), qty.Mul(flatCost), tolerance))
		}
		return
	}
	if expectedFee.IsPositive() {
		if !feeCol.Found() || !row.Has(feeCol.Column) {
			v.Assumptions = append(v.Assumptions, missingNote)
		}
		addCheck(v, CompareFees(feeType, columnDecimal(row, feeCol), expectedFee, tolerance))
	}
}

// VerificationConfidence grades one row from the detection quality of
// the monetary fields, less penalties for assumptions and findings.
func VerificationConfidence(scores map[domain.FieldType]float64, assumptionCount, errorCount int) float64 {
	var sum float64
	minScore := 1.0
	for _, f := range domain.CoreFields {
		s := scores[f]
		sum += s
		if s < minScore {
			minScore = s
		}
	}
	base := sum / float64(len(domain.CoreFields))

	var penalty float64
	if minScore < 0.6 {
		penalty += 0.2
	}
	penalty += math.Min(float64(assumptionCount)*0.05, 0.3)
	penalty += math.Min(float64(errorCount)*0.02, 0.1)

	confidence := base - penalty
	if confidence < 0 {
		confidence = 0
	}
	return math.Round(confidence*100) / 100
}

func addCheck(v *domain.TransactionVerification, check domain.FeeCheck) {
	v.Checks[check.FeeType] = check
	if !check.WithinTolerance && check.Status != domain.FeeMissing {
		v.ErrorCount++
	}
}

// columnDecimal reads a detected column from the row as a decimal, nil
// when the column is absent or the cell does not parse.
func columnDecimal(row domain.TransactionRow, col domain.DetectedColumn) *decimal.Decimal {
	if !col.Found() || !row.Has(col.Column) {
		return nil
	}
	d, ok := row.Value(col.Column).Decimal()
	if !ok {
		return nil
	}
	return &d
}

func resolveTransactionID(row domain.TransactionRow, detected map[domain.FieldType]domain.DetectedColumn, assumptions *[]string) string {
	col := detected[domain.FieldTransactionID]
	if col.Found() && row.Has(col.Column) && col.Confidence >= 0.7 {
		val := row.Value(col.Column)
		zeroNumber := val.Kind == domain.KindNumber && val.Number.IsZero()
		if !val.IsNull() && !zeroNumber && val.Display() != "" {
			return val.Display()
		}
	}
	if col.Found() && col.Confidence < 0.7 {
		*assumptions = append(*assumptions, fmt.Sprintf("Transaction ID column '%s' has low confidence (%.2f), using row number", col.Column, col.Confidence))
	}
	return row.FallbackID()
}

func detectionScores(detected map[domain.FieldType]domain.DetectedColumn) map[domain.FieldType]float64 {
	scores := make(map[domain.FieldType]float64, len(detected))
	for f, d := range detected {
		scores[f] = d.Confidence
	}
	return scores
}
