package ingestion

import "strings"

// headerAliases maps cleaned header spellings to the canonical column
// vocabulary the detector matches against. Keys are cleaned with
// headerKey (lowercased, separators dropped), so "Номер транзакции",
// "номер_транзакции" and "НомерТранзакции" all hit one entry. A few
// keys mix Cyrillic and Latin letters on purpose: real exports contain
// those typo spellings.
var headerAliases = map[string]string{
	// transaction identifiers
	"номер":           "transaction_id",
	"номертранзакции": "transaction_id",
	"id":              "transaction_id",
	"transactionid":   "transaction_id",

	// amounts
	"сумма":             "amount",
	"суммa":             "amount",
	"оборот":            "amount",
	"оборотeur":         "amount",
	"amount":            "amount",
	"amt":               "amount",
	"sum":               "amount",
	"transactionamount": "transaction_amount",

	// commission
	"комиссия":       "commission",
	"вознаграждение": "commission",
	"commission":     "commission",
	"fee":            "commission",
	"charge":         "commission",
	"комиссияeur":    "commission",
	"commissioneur":  "commission",

	// rolling reserve
	"резерв":         "rolling_reserve",
	"резервфонд":     "rolling_reserve",
	"rr":             "rolling_reserve",
	"rollingreserve": "rolling_reserve",
	"reserve":        "rolling_reserve",
	"rrамount":       "rolling_reserve",

	// chargeback
	"чарджбэк":      "chargeback",
	"чарджбек":      "chargeback",
	"чб":            "chb",
	"chb":           "chb",
	"chargeback":    "chargeback",
	"cb":            "chb",
	"chargebackfee": "chargeback_fee",
	"chbколво":      "chargeback_qty",
	"chbfix50euro":  "chargeback_fee_collected",

	// refund
	"возврат":        "refund",
	"refund":         "refund",
	"refundколво":    "refund_qty",
	"refundfix5euro": "refund_fee_collected",
	"refundfee":      "refund_fee",
	"ref":            "refund",

	// date
	"дата":            "date",
	"датa":            "date",
	"date":            "date",
	"created":         "date",
	"timestamp":       "date",
	"transactiondate": "transaction_date",

	// status
	"статус": "status",
	"status": "status",
	"state":  "status",
}

// NormalizeHeader maps a raw column header, Russian or English in any
// separator style, onto the canonical vocabulary. Unknown headers are
// lowercased with spaces collapsed to underscores so they stay stable
// map keys for the row values.
func NormalizeHeader(header string) string {
	if canonical, ok := headerAliases[headerKey(header)]; ok {
		return canonical
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(header)), " ", "_")
}

// KnownHeader reports whether a raw header has an explicit alias and
// what it maps to. Inspect mode shows these as detected mappings.
func KnownHeader(header string) (string, bool) {
	canonical, ok := headerAliases[headerKey(header)]
	return canonical, ok
}

var headerCleaner = strings.NewReplacer(" ", "", "_", "", "-", "")

func headerKey(header string) string {
	return headerCleaner.Replace(strings.ToLower(strings.TrimSpace(header)))
}
