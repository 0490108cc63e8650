package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pastrop/feeaudit/internal/currency"
	"github.com/pastrop/feeaudit/internal/domain"
)

// feeEntry is one fee line from a contract document, in whatever
// spelling that document uses.
type feeEntry map[string]any

// feeSchedule is the flattened fee lookup. Names stay ordered so term
// searches resolve the same way on every load.
type feeSchedule struct {
	names   []string
	entries map[string]feeEntry
}

func (s *feeSchedule) add(name string, entry feeEntry) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return
	}
	if _, dup := s.entries[name]; !dup {
		s.names = append(s.names, name)
	}
	s.entries[name] = entry
}

// find returns the first fee whose name contains any search term,
// terms tried in order.
func (s *feeSchedule) find(terms ...string) feeEntry {
	for _, term := range terms {
		for _, name := range s.names {
			if strings.Contains(name, term) {
				return s.entries[name]
			}
		}
	}
	return nil
}

// LoadContract parses a contract JSON document into ContractTerms.
// Two document shapes are accepted: the fee-schedule shape real
// contracts use (a "fees_and_rates" array or nested categories, or
// per-fee-type top-level arrays), and a flat object keyed by the term
// names themselves. Terms a document does not state keep the standard
// defaults.
func LoadContract(data []byte) (*domain.ContractTerms, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode contract: %w", err)
	}

	terms := domain.DefaultContractTerms()
	schedule := collectFees(doc)

	if len(schedule.names) == 0 {
		if !applyFlatTerms(doc, terms) {
			return nil, fmt.Errorf("no fee information found in contract")
		}
		return terms, nil
	}

	remuneration := schedule.find("remuneration", "processing", "commission",
		"payment processing", "internet acquiring", "acquiring")
	chargeback := schedule.find("chargeback")
	refund := schedule.find("refund")
	reserve := schedule.find("rolling reserve", "rolling_reserve", "rr")

	// Some documents nest the flat event fees inside the remuneration
	// entry instead of giving them their own lines.
	if remuneration != nil {
		if _, ok := parseFeeAmount(chargeback); !ok {
			for _, key := range []string{"charge_back_fee", "chargeback_fee"} {
				if v, ok := remuneration[key]; ok {
					chargeback = feeEntry{"amount": v}
					break
				}
			}
		}
		if _, ok := parseFeeAmount(refund); !ok {
			if v, ok := remuneration["refund_fee"]; ok {
				refund = feeEntry{"amount": v}
			}
		}
	}

	if d, ok := parseFeeAmount(remuneration); ok {
		terms.RemunerationRate = d
	}
	if d, ok := parseFeeAmount(chargeback); ok {
		terms.ChargebackCost = d
	}
	if d, ok := parseFeeAmount(refund); ok {
		terms.RefundCost = d
	}
	if d, ok := parseFeeAmount(reserve); ok {
		terms.RollingReserveRate = d
	}
	if days, ok := rrDays(reserve); ok {
		terms.RollingReserveDays = days
	}
	if d, ok := rrCap(reserve); ok {
		terms.RollingReserveCap = d
	}
	if d, ok := parseFeeAmount(schedule.find("chargeback limit")); ok {
		terms.ChargebackLimit = d
	}

	if pc, ok := doc["payment_conditions"].(map[string]any); ok {
		if d, ok := coerceDecimal(pc["minimum_payment"]); ok {
			terms.MinimumPayment = d
		}
	}
	if tl, ok := doc["transaction_limits"].(map[string]any); ok {
		if d, ok := coerceDecimal(tl["monthly_limit_per_card"]); ok {
			terms.MonthlyCardLimit = d
		}
	}

	cards, currencies := cardsAndCurrencies(doc)
	if len(cards) > 0 {
		terms.SupportedCards = cards
	}
	if len(currencies) > 0 {
		terms.Currencies = currencies
	}
	return terms, nil
}

// collectFees flattens every fee object in the document into one
// schedule. Contracts disagree on nesting: some ship a single
// fees_and_rates array, some nest category maps two levels deep, some
// put each fee type in its own top-level array.
func collectFees(doc map[string]any) *feeSchedule {
	schedule := &feeSchedule{entries: make(map[string]feeEntry)}
	if raw, ok := doc["fees_and_rates"]; ok {
		collectInto(schedule, "", raw)
		return schedule
	}
	for _, key := range []string{
		"payment_processing_fees", "processing_fees", "chargeback_fees",
		"refund_fees", "rolling_reserve", "limits_and_thresholds",
		"payment_processing",
	} {
		if raw, ok := doc[key]; ok {
			collectInto(schedule, key, raw)
		}
	}
	return schedule
}

// collectInto recurses through arrays and category maps. A map that
// carries fee fields is stored under its own fee_name (or limit_name
// or limit_type), falling back to the key it hangs under.
func collectInto(schedule *feeSchedule, name string, raw any) {
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			collectInto(schedule, name, item)
		}
	case map[string]any:
		if looksLikeFee(v) {
			schedule.add(entryName(v, name), feeEntry(v))
			return
		}
		for _, key := range sortedKeys(v) {
			collectInto(schedule, key, v[key])
		}
	}
}

var feeFields = []string{
	"amount", "rate", "percentage", "amount_decimal", "rate_decimal",
	"amount_percentage", "conditions", "holding_period",
	"holding_period_days", "duration", "maximum_cap", "limit_value",
}

func looksLikeFee(m map[string]any) bool {
	for _, field := range feeFields {
		if _, ok := m[field]; ok {
			return true
		}
	}
	return false
}

func entryName(m map[string]any, fallback string) string {
	for _, key := range []string{"fee_name", "limit_name", "limit_type"} {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// applyFlatTerms reads the flat shape where terms appear under their
// own names, with numbers or decimal strings. Returns false when none
// of the known keys are present.
func applyFlatTerms(doc map[string]any, terms *domain.ContractTerms) bool {
	found := false
	set := func(key string, dst *decimal.Decimal) {
		if v, ok := doc[key]; ok {
			if d, ok := coerceDecimal(v); ok {
				*dst = d
				found = true
			}
		}
	}
	set("remuneration_rate", &terms.RemunerationRate)
	set("chargeback_cost", &terms.ChargebackCost)
	set("refund_cost", &terms.RefundCost)
	set("rolling_reserve_rate", &terms.RollingReserveRate)
	set("rolling_reserve_cap", &terms.RollingReserveCap)
	set("chargeback_limit", &terms.ChargebackLimit)
	set("minimum_payment", &terms.MinimumPayment)
	set("monthly_card_limit", &terms.MonthlyCardLimit)
	if v, ok := doc["rolling_reserve_days"]; ok {
		if d, ok := coerceDecimal(v); ok {
			terms.RollingReserveDays = int(d.IntPart())
			found = true
		}
	}
	if cards := stringList(doc["supported_cards"]); len(cards) > 0 {
		terms.SupportedCards = cards
		found = true
	}
	if curr := stringList(doc["currencies"]); len(curr) > 0 {
		terms.Currencies = curr
		found = true
	}
	return found
}

// parseFeeAmount extracts a numeric rate or amount from a fee entry.
// Decimal-typed fields win over display strings; percent strings
// divide by 100 ("3.8%" parses as 0.038); currency codes and comma
// separators are stripped ("37,500 EUR" parses as 37500).
func parseFeeAmount(entry feeEntry) (decimal.Decimal, bool) {
	if entry == nil {
		return decimal.Decimal{}, false
	}
	for _, field := range []string{"amount_decimal", "rate_decimal", "amount_percentage"} {
		if v, ok := entry[field]; ok {
			if d, ok := coerceDecimal(v); ok {
				return d, true
			}
		}
	}
	if v, ok := entry["percentage"]; ok {
		if n, isNum := v.(json.Number); isNum {
			if d, err := decimal.NewFromString(n.String()); err == nil {
				return d, true
			}
		}
	}
	var raw string
	if v, ok := entry["rate"]; ok {
		raw = fmt.Sprint(v)
	} else if v, ok := entry["amount"]; ok {
		raw = fmt.Sprint(v)
	} else {
		return decimal.Decimal{}, false
	}
	return parseAmountString(raw)
}

func parseAmountString(raw string) (decimal.Decimal, bool) {
	cleaned := strings.ReplaceAll(currency.Strip(raw), ",", "")
	if strings.Contains(cleaned, "%") {
		cleaned = strings.TrimSpace(strings.ReplaceAll(cleaned, "%", ""))
		d, err := decimal.NewFromString(cleaned)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d.Div(decimal.NewFromInt(100)), true
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func coerceDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case float64:
		return decimal.NewFromFloat(n), true
	}
	return decimal.Decimal{}, false
}

var digitRun = regexp.MustCompile(`\d+`)

// rrDays reads the reserve holding period. Contracts write it as a
// bare number or as prose like "180 days".
func rrDays(entry feeEntry) (int, bool) {
	if entry == nil {
		return 0, false
	}
	if v, ok := entry["holding_period_days"]; ok {
		if d, ok := coerceDecimal(v); ok {
			return int(d.IntPart()), true
		}
	}
	for _, field := range []string{"duration", "holding_period"} {
		v, ok := entry[field]
		if !ok {
			continue
		}
		if d, ok := coerceDecimal(v); ok {
			return int(d.IntPart()), true
		}
		if m := digitRun.FindString(fmt.Sprint(v)); m != "" {
			if n, err := strconv.Atoi(m); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

var capPatterns = []*regexp.Regexp{
	regexp.MustCompile(`maximum\s+([\d,]+)`),
	regexp.MustCompile(`max\s+([\d,]+)`),
	regexp.MustCompile(`cap\s+([\d,]+)`),
}

// rrCap reads the reserve cap from an explicit field or, failing that,
// from conditions prose like "maximum 37,500 EUR".
func rrCap(entry feeEntry) (decimal.Decimal, bool) {
	if entry == nil {
		return decimal.Decimal{}, false
	}
	for _, field := range []string{"maximum_cap", "max_cap", "maximum_amount", "maximum_reserve"} {
		v, ok := entry[field]
		if !ok {
			continue
		}
		if s, isStr := v.(string); isStr {
			if d, ok := parseAmountString(s); ok {
				return d, true
			}
			continue
		}
		if d, ok := coerceDecimal(v); ok {
			return d, true
		}
	}
	conditions, _ := entry["conditions"].(string)
	conditions = strings.ToLower(conditions)
	for _, re := range capPatterns {
		if m := re.FindStringSubmatch(conditions); len(m) == 2 {
			if d, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", "")); err == nil {
				return d, true
			}
		}
	}
	return decimal.Decimal{}, false
}

// cardsAndCurrencies pulls supported card brands and settlement
// currencies out of whichever section the document keeps them in.
func cardsAndCurrencies(doc map[string]any) (cards, currencies []string) {
	switch pm := doc["payment_methods"].(type) {
	case map[string]any:
		cards = stringList(pm["supported_cards"])
		currencies = stringList(pm["currencies"])
	case []any:
		for _, item := range pm {
			entry, ok := item.(map[string]any)
			if !ok {
				cards = append(cards, fmt.Sprint(item))
				continue
			}
			if types := stringList(entry["card_types"]); len(types) > 0 {
				cards = append(cards, types...)
			} else if m, ok := entry["method"]; ok {
				cards = append(cards, fmt.Sprint(m))
			} else if m, ok := entry["type"]; ok {
				cards = append(cards, fmt.Sprint(m))
			}
		}
	}
	if len(cards) == 0 {
		if sec, ok := doc["security_requirements"].(map[string]any); ok {
			cards = stringList(sec["card_types"])
		}
	}
	if len(currencies) == 0 {
		switch sc := doc["supported_currencies"].(type) {
		case []any:
			if len(sc) > 0 {
				if first, ok := sc[0].(map[string]any); ok {
					currencies = stringList(first["authorization_currencies"])
					if len(currencies) == 0 {
						currencies = stringList(first["currencies"])
					}
				} else {
					currencies = stringList(sc)
				}
			}
		case map[string]any:
			currencies = stringList(sc["authorization_currencies"])
			if len(currencies) == 0 {
				currencies = stringList(sc["currencies"])
			}
		}
	}
	if len(currencies) == 0 {
		if fr, ok := doc["fees_and_rates"].(map[string]any); ok {
			if sd, ok := fr["settlement_details"].(map[string]any); ok {
				currencies = stringList(sd["supported_currencies"])
			}
			if len(currencies) == 0 {
				if at, ok := fr["approved_terms"].(map[string]any); ok {
					currencies = stringList(at["currencies"])
				}
			}
		}
	}
	return cards, currencies
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, fmt.Sprint(item))
	}
	return out
}
