package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ContractTerms is the fee schedule agreed with the payment provider.
// Rates are fractions (0.038 means 3.8%), monetary fields are absolute
// amounts in the contract currency.
type ContractTerms struct {
	RemunerationRate   decimal.Decimal `json:"remuneration_rate"`
	ChargebackCost     decimal.Decimal `json:"chargeback_cost"`
	RefundCost         decimal.Decimal `json:"refund_cost"`
	RollingReserveRate decimal.Decimal `json:"rolling_reserve_rate"`
	RollingReserveDays int             `json:"rolling_reserve_days"`
	RollingReserveCap  decimal.Decimal `json:"rolling_reserve_cap"`
	ChargebackLimit    decimal.Decimal `json:"chargeback_limit"`
	MinimumPayment     decimal.Decimal `json:"minimum_payment"`
	MonthlyCardLimit   decimal.Decimal `json:"monthly_card_limit"`
	SupportedCards     []string        `json:"supported_cards,omitempty"`
	Currencies         []string        `json:"currencies,omitempty"`
}

func DefaultContractTerms() *ContractTerms {
	return &ContractTerms{
		RemunerationRate:   decimal.NewFromFloat(0.038),
		ChargebackCost:     decimal.NewFromFloat(50.00),
		RefundCost:         decimal.NewFromFloat(5.00),
		RollingReserveRate: decimal.NewFromFloat(0.10),
		RollingReserveDays: 180,
		RollingReserveCap:  decimal.NewFromFloat(37500.00),
		ChargebackLimit:    decimal.NewFromFloat(0.005),
		MinimumPayment:     decimal.NewFromFloat(1.00),
		MonthlyCardLimit:   decimal.NewFromFloat(5000.00),
		SupportedCards:     []string{"Visa", "Mastercard"},
		Currencies:         []string{"EUR"},
	}
}

func (c *ContractTerms) Validate() error {
	one := decimal.NewFromInt(1)
	if c.RemunerationRate.IsNegative() || c.RemunerationRate.GreaterThan(one) {
		return fmt.Errorf("remuneration_rate %s outside [0, 1]", c.RemunerationRate)
	}
	if c.RollingReserveRate.IsNegative() || c.RollingReserveRate.GreaterThan(one) {
		return fmt.Errorf("rolling_reserve_rate %s outside [0, 1]", c.RollingReserveRate)
	}
	if c.ChargebackLimit.IsNegative() || c.ChargebackLimit.GreaterThan(one) {
		return fmt.Errorf("chargeback_limit %s outside [0, 1]", c.ChargebackLimit)
	}
	if c.ChargebackCost.IsNegative() {
		return fmt.Errorf("chargeback_cost %s is negative", c.ChargebackCost)
	}
	if c.RefundCost.IsNegative() {
		return fmt.Errorf("refund_cost %s is negative", c.RefundCost)
	}
	if c.RollingReserveCap.IsNegative() {
		return fmt.Errorf("rolling_reserve_cap %s is negative", c.RollingReserveCap)
	}
	if c.RollingReserveDays <= 0 {
		return fmt.Errorf("rolling_reserve_days %d must be positive", c.RollingReserveDays)
	}
	return nil
}
