package fees

import (
	"github.com/shopspring/decimal"

	"github.com/pastrop/feeaudit/internal/domain"
)

// MinFlatFeeConfidence gates the flat chargeback/refund fees: below this
// detection confidence the fee type is skipped rather than guessed.
const MinFlatFeeConfidence = 0.7

// ExpectedFees is the contractual fee set for one transaction. All
// values are exact decimals rounded half-up to cents.
type ExpectedFees struct {
	Remuneration   decimal.Decimal `json:"remuneration"`
	Chargeback     decimal.Decimal `json:"chargeback"`
	Refund         decimal.Decimal `json:"refund"`
	RollingReserve decimal.Decimal `json:"rolling_reserve"`
	Total          decimal.Decimal `json:"total_fees"`
	MissingData    []string        `json:"missing_data,omitempty"`
}

// SetRollingReserve fills in the reserve share and refreshes the total.
func (f *ExpectedFees) SetRollingReserve(rr decimal.Decimal) {
	f.RollingReserve = rr
	f.Total = f.Remuneration.Add(f.Chargeback).Add(f.Refund).Add(f.RollingReserve)
}

// Remuneration is the percentage fee on the transaction amount.
func Remuneration(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Round(2)
}

func ChargebackFee(isChargeback bool, cost decimal.Decimal) decimal.Decimal {
	if isChargeback {
		return cost
	}
	return decimal.Zero
}

func RefundFee(isRefund bool, cost decimal.Decimal) decimal.Decimal {
	if isRefund {
		return cost
	}
	return decimal.Zero
}

// CalculateExpected computes the expected fees for one row. A missing or
// unparseable amount zeroes everything and reports the gap instead of
// failing; flat fees apply only when their column was detected with
// enough confidence and the row carries a non-zero marker.
func CalculateExpected(row domain.TransactionRow, contract *domain.ContractTerms, detected map[domain.FieldType]domain.DetectedColumn) ExpectedFees {
	var fees ExpectedFees

	amountCol := detected[domain.FieldAmount]
	if !amountCol.Found() || !row.Has(amountCol.Column) {
		fees.MissingData = append(fees.MissingData, "amount")
		return fees
	}
	amount, ok := row.Value(amountCol.Column).Decimal()
	if !ok {
		fees.MissingData = append(fees.MissingData, "amount (invalid value)")
		return fees
	}

	fees.Remuneration = Remuneration(amount, contract.RemunerationRate)
	fees.Chargeback = ChargebackFee(
		flatFeeTriggered(row, detected[domain.FieldChargebackFee], &fees.MissingData, "chargeback_fee"),
		contract.ChargebackCost,
	)
	fees.Refund = RefundFee(
		flatFeeTriggered(row, detected[domain.FieldRefundFee], &fees.MissingData, "refund_fee"),
		contract.RefundCost,
	)
	fees.Total = fees.Remuneration.Add(fees.Chargeback).Add(fees.Refund)
	return fees
}

// flatFeeTriggered reports whether a flat fee event (chargeback, refund)
// happened on this row. Low-confidence detections skip the fee and leave
// a note so the report shows why.
func flatFeeTriggered(row domain.TransactionRow, col domain.DetectedColumn, missing *[]string, label string) bool {
	if !col.Found() {
		return false
	}
	if col.Confidence < MinFlatFeeConfidence {
		*missing = append(*missing, label+" (low confidence)")
		return false
	}
	if !row.Has(col.Column) {
		return false
	}
	v := row.Value(col.Column)
	if v.IsNull() {
		return false
	}
	if v.Kind == domain.KindNumber && v.Number.IsZero() {
		return false
	}
	return true
}
