package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type FeeType string

const (
	FeeRemuneration   FeeType = "remuneration"
	FeeChargeback     FeeType = "chargeback"
	FeeRefund         FeeType = "refund"
	FeeRollingReserve FeeType = "rolling_reserve"
)

type FeeStatus string

const (
	FeeCorrect      FeeStatus = "CORRECT"
	FeeOvercharged  FeeStatus = "OVERCHARGED"
	FeeUndercharged FeeStatus = "UNDERCHARGED"
	FeeMissing      FeeStatus = "MISSING"
)

type VerificationStatus string

const (
	VerificationCorrect      VerificationStatus = "CORRECT"
	VerificationHasErrors    VerificationStatus = "HAS_ERRORS"
	VerificationQuestionable VerificationStatus = "QUESTIONABLE"
)

// FeeCheck compares one charged fee against its contractual expectation.
// Actual is nil when the statement carries no value for the fee.
type FeeCheck struct {
	FeeType         FeeType          `json:"fee_type"`
	Expected        decimal.Decimal  `json:"expected"`
	Actual          *decimal.Decimal `json:"actual,omitempty"`
	Difference      *decimal.Decimal `json:"difference,omitempty"`
	DifferencePct   *decimal.Decimal `json:"difference_pct,omitempty"`
	Status          FeeStatus        `json:"status"`
	WithinTolerance bool             `json:"within_tolerance"`
}

type TransactionVerification struct {
	TransactionID string               `json:"transaction_id"`
	Checks        map[FeeType]FeeCheck `json:"checks"`
	OverallStatus VerificationStatus   `json:"overall_status"`
	ErrorCount    int                  `json:"error_count"`
	Confidence    float64              `json:"confidence"`
	Assumptions   []string             `json:"assumptions,omitempty"`
	MissingData   []string             `json:"missing_data,omitempty"`
}

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

type Discrepancy struct {
	ID            string          `json:"id"`
	RunID         string          `json:"run_id,omitempty"`
	TransactionID string          `json:"transaction_id"`
	FeeType       FeeType         `json:"fee_type"`
	Expected      decimal.Decimal `json:"expected"`
	Actual        decimal.Decimal `json:"actual"`
	Difference    decimal.Decimal `json:"difference"`
	Status        FeeStatus       `json:"status"`
	Severity      Severity        `json:"severity"`
	Description   string          `json:"description"`
	DetectedAt    time.Time       `json:"detected_at"`
}
