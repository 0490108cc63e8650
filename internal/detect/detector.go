package detect

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pastrop/feeaudit/internal/domain"
)

// fieldOrder fixes iteration order so detection output is deterministic
// for a given header set.
var fieldOrder = []domain.FieldType{
	domain.FieldTransactionID,
	domain.FieldAmount,
	domain.FieldCommission,
	domain.FieldRollingReserve,
	domain.FieldChargebackFee,
	domain.FieldRefundFee,
	domain.FieldChargebackQty,
	domain.FieldChargebackFeeCollected,
	domain.FieldRefundQty,
	domain.FieldRefundFeeCollected,
	domain.FieldDate,
	domain.FieldStatus,
}

// fieldPatterns maps each logical field to the header spellings seen in
// provider statements, Russian included.
var fieldPatterns = map[domain.FieldType][]string{
	domain.FieldTransactionID: {
		"transaction_id", "id", "номер", "order_id", "tx_id", "transactionid",
	},
	domain.FieldAmount: {
		"amount", "сумма", "оборот", "transaction_amount", "amt", "sum", "total",
	},
	domain.FieldCommission: {
		"commission", "комиссия", "вознаграждение", "fee", "charge", "commission_eur", "processing_fee",
	},
	domain.FieldRollingReserve: {
		"rolling_reserve", "rr", "reserve", "резерв", "rolling_res", "rr_amount",
		"reservefund", "резервфонд",
	},
	domain.FieldChargebackFee: {
		"chargeback", "чарджбэк", "cb_fee", "chb", "chargeback_fee", "cb",
	},
	domain.FieldRefundFee: {
		"refund", "возврат", "refund_fee", "ref", "refund_amount",
	},
	domain.FieldChargebackQty: {
		"chargeback_qty", "chb_qty", "chb_кол-во", "chargeback_quantity",
	},
	domain.FieldChargebackFeeCollected: {
		"chargeback_fee_collected", "chb_fix_50_euro", "chb_fee_actual", "fix_50_euro",
	},
	domain.FieldRefundQty: {
		"refund_qty", "refund_кол-во", "refund_quantity",
	},
	domain.FieldRefundFeeCollected: {
		"refund_fee_collected", "refund_fix_5_euro", "refund_fee_actual", "fix_5_euro",
	},
	domain.FieldDate: {
		"date", "дата", "created", "timestamp", "transaction_date", "created_at",
	},
	domain.FieldStatus: {
		"status", "статус", "state", "transaction_status",
	},
}

// Result is the outcome of matching a header set against the known
// field patterns. Columns always has an entry per field; a zero
// Confidence with an empty Column means the field was not found.
type Result struct {
	Columns     map[domain.FieldType]domain.DetectedColumn `json:"columns"`
	Ambiguities []string                                   `json:"ambiguities,omitempty"`
	Missing     []domain.FieldType                         `json:"missing_fields,omitempty"`
}

func (r *Result) Score(field domain.FieldType) float64 {
	return r.Columns[field].Confidence
}

func (r *Result) Column(field domain.FieldType) (string, bool) {
	d := r.Columns[field]
	return d.Column, d.Found()
}

func (r *Result) Scores() map[domain.FieldType]float64 {
	scores := make(map[domain.FieldType]float64, len(r.Columns))
	for f, d := range r.Columns {
		scores[f] = d.Confidence
	}
	return scores
}

// DetectColumns matches normalized header names against the field
// patterns. For every field the best-scoring column wins; ties go to
// the earliest column. Two or more distinct columns scoring >= 0.7 for
// one field are recorded as an ambiguity rather than silently resolved.
func DetectColumns(columns []string) *Result {
	res := &Result{Columns: make(map[domain.FieldType]domain.DetectedColumn, len(fieldOrder))}

	for _, field := range fieldOrder {
		patterns := fieldPatterns[field]

		type candidate struct {
			column string
			score  float64
		}
		var candidates []candidate
		for _, col := range columns {
			top := 0.0
			for _, p := range patterns {
				if s := MatchConfidence(p, col); s > top {
					top = s
				}
			}
			if top > 0 {
				candidates = append(candidates, candidate{column: col, score: top})
			}
		}

		if len(candidates) == 0 {
			res.Columns[field] = domain.DetectedColumn{Field: field}
			res.Missing = append(res.Missing, field)
			continue
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].score > candidates[j].score
		})
		res.Columns[field] = domain.DetectedColumn{
			Field:      field,
			Column:     candidates[0].column,
			Confidence: candidates[0].score,
		}

		var high []string
		for _, c := range candidates {
			if c.score >= 0.7 {
				high = append(high, c.column)
			}
		}
		if len(high) > 1 {
			res.Ambiguities = append(res.Ambiguities,
				fmt.Sprintf("Multiple columns match '%s': %v", field, high))
		}
	}
	return res
}

// MatchConfidence scores how well a header matches a field pattern:
// 1.0 exact, 0.9 prefix, 0.8 suffix, 0.7 substring, 0.6 edit distance
// up to 2, 0.5 edit distance 3, 0 otherwise.
func MatchConfidence(pattern, column string) float64 {
	pattern = strings.TrimSpace(strings.ToLower(pattern))
	column = strings.TrimSpace(strings.ToLower(column))

	switch {
	case pattern == column:
		return 1.0
	case strings.HasPrefix(column, pattern):
		return 0.9
	case strings.HasSuffix(column, pattern):
		return 0.8
	case strings.Contains(column, pattern):
		return 0.7
	}

	switch d := Levenshtein(pattern, column); {
	case d <= 2:
		return 0.6
	case d == 3:
		return 0.5
	}
	return 0.0
}

// Levenshtein is the classic edit distance over runes, so Cyrillic
// headers measure correctly.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	cur := make([]int, len(rb)+1)
	for i, c1 := range ra {
		cur[0] = i + 1
		for j, c2 := range rb {
			ins := prev[j+1] + 1
			del := cur[j] + 1
			sub := prev[j]
			if c1 != c2 {
				sub++
			}
			cur[j+1] = min(ins, del, sub)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// OverallConfidence aggregates per-field scores into one number. A
// missing required field pins the result at 0.3; otherwise required
// fields weigh 0.7 and the rest 0.3. Required defaults to amount and
// transaction_id.
func OverallConfidence(scores map[domain.FieldType]float64, required []domain.FieldType) (float64, []string) {
	if len(required) == 0 {
		required = []domain.FieldType{domain.FieldAmount, domain.FieldTransactionID}
	}

	var reasons []string
	var missing []string
	for _, f := range required {
		if scores[f] == 0 {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		reasons = append(reasons, "Missing required fields: "+strings.Join(missing, ", "))
		return 0.3, reasons
	}

	var sumReq float64
	for _, f := range required {
		sumReq += scores[f]
	}
	avgReq := sumReq / float64(len(required))

	var sumAll float64
	var nAll int
	for _, f := range fieldOrder {
		if c := scores[f]; c > 0 {
			sumAll += c
			nAll++
		}
	}
	var avgAll float64
	if nAll > 0 {
		avgAll = sumAll / float64(nAll)
	}

	overall := math.Round((avgReq*0.7+avgAll*0.3)*100) / 100

	switch {
	case overall >= 0.8:
		reasons = append(reasons, "High confidence: all key fields detected clearly")
	case overall >= 0.5:
		reasons = append(reasons, "Medium confidence: some fields detected with uncertainty")
		var low []string
		for _, f := range fieldOrder {
			if c := scores[f]; c > 0 && c < 0.7 {
				low = append(low, string(f))
			}
		}
		if len(low) > 0 {
			reasons = append(reasons, "Low confidence fields: "+strings.Join(low, ", "))
		}
	default:
		reasons = append(reasons, "Low confidence: multiple fields missing or ambiguous")
	}
	return overall, reasons
}
