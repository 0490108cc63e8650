package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ValueKind string

const (
	KindNull   ValueKind = "null"
	KindNumber ValueKind = "number"
	KindText   ValueKind = "text"
	KindDate   ValueKind = "date"
)

// Value is one typed cell. Loaders parse raw input into Values up front,
// so the analysis layers never see raw strings; Raw keeps the original
// text for display.
type Value struct {
	Kind   ValueKind       `json:"kind"`
	Number decimal.Decimal `json:"number"`
	Text   string          `json:"text,omitempty"`
	Date   time.Time       `json:"date"`
	Raw    string          `json:"raw,omitempty"`
}

func NullValue() Value { return Value{Kind: KindNull} }

func NumberValue(d decimal.Decimal, raw string) Value {
	return Value{Kind: KindNumber, Number: d, Raw: raw}
}

func TextValue(s string) Value { return Value{Kind: KindText, Text: s, Raw: s} }

func DateValue(t time.Time, raw string) Value {
	return Value{Kind: KindDate, Date: t, Raw: raw}
}

func (v Value) IsNull() bool { return v.Kind == KindNull || v.Kind == "" }

func (v Value) Decimal() (decimal.Decimal, bool) {
	if v.Kind != KindNumber {
		return decimal.Decimal{}, false
	}
	return v.Number, true
}

func (v Value) Float64() (float64, bool) {
	if v.Kind != KindNumber {
		return 0, false
	}
	f, _ := v.Number.Float64()
	return f, true
}

func (v Value) Time() (time.Time, bool) {
	if v.Kind != KindDate {
		return time.Time{}, false
	}
	return v.Date, true
}

func (v Value) Display() string {
	if v.Raw != "" {
		return v.Raw
	}
	switch v.Kind {
	case KindNumber:
		return v.Number.String()
	case KindText:
		return v.Text
	case KindDate:
		return v.Date.Format("2006-01-02")
	default:
		return ""
	}
}
