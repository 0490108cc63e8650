package domain

import "fmt"

type FieldType string

const (
	FieldTransactionID          FieldType = "transaction_id"
	FieldAmount                 FieldType = "amount"
	FieldCommission             FieldType = "commission"
	FieldRollingReserve         FieldType = "rolling_reserve"
	FieldChargebackFee          FieldType = "chargeback_fee"
	FieldRefundFee              FieldType = "refund_fee"
	FieldChargebackQty          FieldType = "chargeback_qty"
	FieldChargebackFeeCollected FieldType = "chargeback_fee_collected"
	FieldRefundQty              FieldType = "refund_qty"
	FieldRefundFeeCollected     FieldType = "refund_fee_collected"
	FieldDate                   FieldType = "date"
	FieldStatus                 FieldType = "status"
)

// CoreFields drive the overall confidence score. Everything else is
// optional enrichment.
var CoreFields = []FieldType{FieldAmount, FieldCommission, FieldRollingReserve}

// TransactionRow is one parsed input row. Rows are read-only after
// loading; every analysis layer treats them as immutable.
type TransactionRow struct {
	Index   int              `json:"index"`
	Source  string           `json:"source,omitempty"`
	Columns []string         `json:"columns"`
	Values  map[string]Value `json:"values"`
}

func (r TransactionRow) Value(column string) Value {
	v, ok := r.Values[column]
	if !ok {
		return NullValue()
	}
	return v
}

func (r TransactionRow) Has(column string) bool {
	_, ok := r.Values[column]
	return ok
}

// FallbackID identifies a row when no usable transaction id column exists.
func (r TransactionRow) FallbackID() string {
	if r.Source != "" {
		return fmt.Sprintf("%s:Row%d", r.Source, r.Index)
	}
	return fmt.Sprintf("Row%d", r.Index)
}

type DetectedColumn struct {
	Field      FieldType `json:"field"`
	Column     string    `json:"column,omitempty"`
	Confidence float64   `json:"confidence"`
}

func (d DetectedColumn) Found() bool { return d.Column != "" }
