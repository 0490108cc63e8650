package currency

import "strings"

// symbolTokens maps the currency glyphs that show up inline in money
// cells to their ISO codes. Ordered so Detect is deterministic.
var symbolTokens = []struct {
	Glyph string
	Code  string
}{
	{"€", "EUR"},
	{"£", "GBP"},
	{"$", "USD"},
}

// codeTokens are the ISO codes acquirer exports and contracts quote
// amounts in ("50 EUR", "37,500 EUR").
var codeTokens = []string{"EUR", "GBP", "USD", "AUD", "NOK", "KES", "NGN", "ZAR"}

// Strip removes currency symbols and codes from a raw cell so the
// remainder can be parsed as a number. Codes are matched in upper case
// only; a lowercase "eur" is treated as text, not money.
func Strip(s string) string {
	for _, tok := range symbolTokens {
		s = strings.ReplaceAll(s, tok.Glyph, "")
	}
	for _, code := range codeTokens {
		s = strings.ReplaceAll(s, code, "")
	}
	return strings.TrimSpace(s)
}

// Detect reports the first currency token present in a raw cell.
func Detect(s string) (string, bool) {
	for _, tok := range symbolTokens {
		if strings.Contains(s, tok.Glyph) {
			return tok.Code, true
		}
	}
	for _, code := range codeTokens {
		if strings.Contains(s, code) {
			return code, true
		}
	}
	return "", false
}

// Known reports whether code is one the token tables cover.
func Known(code string) bool {
	for _, c := range codeTokens {
		if c == code {
			return true
		}
	}
	return false
}
