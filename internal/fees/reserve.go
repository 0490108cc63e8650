package fees

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ReserveHolding is one slice of withheld reserve awaiting release.
type ReserveHolding struct {
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// ReserveApplication reports how a single transaction moved the reserve.
type ReserveApplication struct {
	ReserveAmount     decimal.Decimal `json:"rr_amount"`
	AppliedAmount     decimal.Decimal `json:"applied_amount"`
	Capped            bool            `json:"capped"`
	CurrentBalance    decimal.Decimal `json:"current_balance"`
	RemainingCapacity decimal.Decimal `json:"remaining_capacity"`
}

// ReserveStatus is a point-in-time snapshot of the tracker.
type ReserveStatus struct {
	CurrentBalance    decimal.Decimal `json:"current_balance"`
	Cap               decimal.Decimal `json:"cap"`
	UtilizationPct    decimal.Decimal `json:"utilization_pct"`
	RemainingCapacity decimal.Decimal `json:"remaining_capacity"`
	HoldingCount      int             `json:"holding_count"`
	OldestHolding     *time.Time      `json:"oldest_holding,omitempty"`
}

// ReserveTracker accumulates rolling reserve across a date-ordered
// transaction stream and releases holdings once they age past the
// holding period. The balance always equals the sum of live holdings and
// never exceeds the cap. Not safe for concurrent use.
type ReserveTracker struct {
	cap         decimal.Decimal
	holdingDays int
	balance     decimal.Decimal
	holdings    []ReserveHolding
	oldest      int
	lastDate    time.Time
}

func NewReserveTracker(cap decimal.Decimal, holdingDays int) *ReserveTracker {
	return &ReserveTracker{cap: cap, holdingDays: holdingDays}
}

// Apply withholds the reserve share of one transaction, honoring the
// cap. Once the balance reaches the cap only the remaining headroom is
// applied. Dates must be non-decreasing; an out-of-order date is a
// caller bug and returns an error without touching the balance.
func (t *ReserveTracker) Apply(amount, rate decimal.Decimal, date time.Time) (ReserveApplication, error) {
	if date.IsZero() {
		return ReserveApplication{}, fmt.Errorf("reserve: transaction date is required")
	}
	if !t.lastDate.IsZero() && date.Before(t.lastDate) {
		return ReserveApplication{}, fmt.Errorf("reserve: date %s precedes last applied date %s",
			date.Format("2006-01-02"), t.lastDate.Format("2006-01-02"))
	}

	rr := amount.Mul(rate).Round(2)
	applied := rr
	capped := false
	if t.balance.Add(rr).GreaterThan(t.cap) {
		applied = t.cap.Sub(t.balance)
		capped = true
	}

	t.balance = t.balance.Add(applied)
	t.holdings = append(t.holdings, ReserveHolding{Date: date, Amount: applied})
	t.lastDate = date

	return ReserveApplication{
		ReserveAmount:     rr,
		AppliedAmount:     applied,
		Capped:            capped,
		CurrentBalance:    t.balance,
		RemainingCapacity: t.cap.Sub(t.balance),
	}, nil
}

// ReleaseExpired frees every holding whose date is at or past the
// holding period and returns the released total. Holdings arrive in
// date order, so release advances a cursor from the oldest entry rather
// than rescanning the whole list.
func (t *ReserveTracker) ReleaseExpired(now time.Time) decimal.Decimal {
	cutoff := now.AddDate(0, 0, -t.holdingDays)
	released := decimal.Zero
	for t.oldest < len(t.holdings) && !t.holdings[t.oldest].Date.After(cutoff) {
		released = released.Add(t.holdings[t.oldest].Amount)
		t.oldest++
	}
	t.balance = t.balance.Sub(released)
	if t.oldest > 32 && t.oldest > len(t.holdings)/2 {
		t.holdings = append([]ReserveHolding(nil), t.holdings[t.oldest:]...)
		t.oldest = 0
	}
	return released.Round(2)
}

func (t *ReserveTracker) Balance() decimal.Decimal { return t.balance }

func (t *ReserveTracker) Cap() decimal.Decimal { return t.cap }

func (t *ReserveTracker) HoldingCount() int { return len(t.holdings) - t.oldest }

// Status snapshots the tracker for reporting.
func (t *ReserveTracker) Status() ReserveStatus {
	s := ReserveStatus{
		CurrentBalance:    t.balance,
		Cap:               t.cap,
		RemainingCapacity: t.cap.Sub(t.balance),
		HoldingCount:      t.HoldingCount(),
	}
	if t.cap.IsPositive() {
		s.UtilizationPct = t.balance.Div(t.cap).Mul(hundred).Round(2)
	}
	if t.oldest < len(t.holdings) {
		d := t.holdings[t.oldest].Date
		s.OldestHolding = &d
	}
	return s
}

// Reset clears the tracker for a fresh statement period.
func (t *ReserveTracker) Reset() {
	t.balance = decimal.Zero
	t.holdings = nil
	t.oldest = 0
	t.lastDate = time.Time{}
}

// ExpectedReserve is the stateless per-transaction reserve: the rate
// share of the amount, capped. The batch verifier uses this form since a
// single statement rarely spans the whole holding window.
func ExpectedReserve(amount, rate, cap decimal.Decimal) (decimal.Decimal, bool) {
	rr := amount.Mul(rate).Round(2)
	if rr.GreaterThan(cap) {
		return cap, true
	}
	return rr, false
}
