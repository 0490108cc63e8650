package ingestion

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pastrop/feeaudit/internal/currency"
	"github.com/pastrop/feeaudit/internal/domain"
)

// dateLayouts are tried in order when parsing date cells. Acquirer
// exports mix ISO dates with European dotted and slashed forms, and
// API dumps use RFC3339.
var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseDecimal parses a money cell. Currency symbols and codes, comma
// separators and stray spaces are stripped first, so "€1,234.56" and
// "37,500 EUR" both parse. The second return is false when the cell is
// empty or not numeric.
func ParseDecimal(raw string) (decimal.Decimal, bool) {
	cleaned := currency.Strip(raw)
	cleaned = strings.NewReplacer(",", "", " ", "").Replace(cleaned)
	if cleaned == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ParseDate parses a date cell against the known layout list.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseValue types a raw cell for the given normalized column.
// Identifier and status columns stay text even when numeric, date
// columns prefer date parsing, everything else is tried as a number
// first. Unparseable content is kept as text; loading never fails on
// a bad cell.
func ParseValue(column, raw string) domain.Value {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return domain.NullValue()
	}
	if textColumn(column) {
		return domain.TextValue(trimmed)
	}
	if dateColumn(column) {
		if t, ok := ParseDate(trimmed); ok {
			return domain.DateValue(t, trimmed)
		}
	}
	if d, ok := ParseDecimal(trimmed); ok {
		return domain.NumberValue(d, trimmed)
	}
	if t, ok := ParseDate(trimmed); ok {
		return domain.DateValue(t, trimmed)
	}
	return domain.TextValue(trimmed)
}

func textColumn(column string) bool {
	return column == string(domain.FieldStatus) || strings.Contains(column, "id")
}

func dateColumn(column string) bool {
	return strings.Contains(column, "date")
}
