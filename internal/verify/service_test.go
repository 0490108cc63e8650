package verify

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pastrop/feeaudit/internal/domain"
	"github.com/pastrop/feeaudit/internal/logger"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func day(offset int) time.Time {
	return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

var statementColumns = []string{"transaction_id", "amount", "commission_eur", "rr", "date", "status"}

func statementRow(i int, amount, commission, reserve decimal.Decimal, date time.Time) domain.TransactionRow {
	return domain.TransactionRow{
		Index:   i,
		Columns: statementColumns,
		Values: map[string]domain.Value{
			"transaction_id": domain.TextValue(fmt.Sprintf("TX-%03d", i)),
			"amount":         domain.NumberValue(amount, amount.String()),
			"commission_eur": domain.NumberValue(commission, commission.String()),
			"rr":             domain.NumberValue(reserve, reserve.String()),
			"date":           domain.DateValue(date, date.Format("2006-01-02")),
			"status":         domain.TextValue("approved"),
		},
	}
}

func TestService_Run_EndToEnd(t *testing.T) {
	contract := domain.DefaultContractTerms()
	svc := NewService(logger.New(), contract, Options{Workers: 8})

	// 95 clean rows, then 5 with the commission inflated by 2.00
	rows := make([]domain.TransactionRow, 0, 100)
	for i := 1; i <= 100; i++ {
		amount := decimal.NewFromInt(int64(99 + i))
		commission := amount.Mul(contract.RemunerationRate).Round(2)
		if i > 95 {
			commission = commission.Add(dec("2.00"))
		}
		reserve := amount.Mul(contract.RollingReserveRate).Round(2)
		rows = append(rows, statementRow(i, amount, commission, reserve, day(i)))
	}

	result, err := svc.Run(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, result.Verifications, 100)

	assert.Equal(t, 100, result.Summary.TotalTransactions)
	assert.Equal(t, 95, result.Summary.CorrectCount)
	assert.Equal(t, 5, result.Summary.ErroneousCount)
	assert.Equal(t, 0, result.Summary.QuestionableCount)
	assert.Equal(t, "10.00", result.Summary.TotalDiscrepancy.StringFixed(2))
	assert.Equal(t, "10.00", result.Summary.TotalDiscrepancyComplete.StringFixed(2))
	assert.Equal(t, 95.0, result.Summary.AccuracyRate)

	// percentage classification promotes the commission column
	commissionCol := result.Detection.Columns[domain.FieldCommission]
	assert.Equal(t, "commission_eur", commissionCol.Column)
	assert.Equal(t, 1.0, commissionCol.Confidence)
	assert.GreaterOrEqual(t, result.Detection.Confidence, 0.9)

	// worker pool must not reorder results
	for i, v := range result.Verifications {
		assert.Equal(t, fmt.Sprintf("TX-%03d", i+1), v.TransactionID)
	}
	for i := 95; i < 100; i++ {
		v := result.Verifications[i]
		assert.Equal(t, domain.VerificationHasErrors, v.OverallStatus)
		check := v.Checks[domain.FeeRemuneration]
		assert.Equal(t, domain.FeeOvercharged, check.Status)
		assert.Equal(t, "2.00", check.Difference.StringFixed(2))
	}
	assert.Equal(t, domain.VerificationCorrect, result.Verifications[0].OverallStatus)
	assert.Nil(t, result.Reserve)
}

func TestService_Run_DetectionAssumptions(t *testing.T) {
	contract := domain.DefaultContractTerms()
	svc := NewService(logger.New(), contract, Options{})

	rows := make([]domain.TransactionRow, 0, 20)
	for i := 1; i <= 20; i++ {
		amount := decimal.NewFromInt(int64(100 + i))
		rows = append(rows, statementRow(i, amount,
			amount.Mul(contract.RemunerationRate).Round(2),
			amount.Mul(contract.RollingReserveRate).Round(2),
			day(i)))
	}

	result, err := svc.Run(context.Background(), rows)
	require.NoError(t, err)

	var sawRemuneration, sawChargebackSkip, sawRefundSkip bool
	for _, a := range result.Detection.Assumptions {
		switch {
		case strings.Contains(a, "assumed to be Remuneration"):
			sawRemuneration = true
		case strings.Contains(a, "Chargeback verification skipped"):
			sawChargebackSkip = true
		case strings.Contains(a, "Refund verification skipped"):
			sawRefundSkip = true
		}
	}
	assert.True(t, sawRemuneration, "expected remuneration classification note, got %v", result.Detection.Assumptions)
	assert.True(t, sawChargebackSkip, "expected chargeback skip note, got %v", result.Detection.Assumptions)
	assert.True(t, sawRefundSkip, "expected refund skip note, got %v", result.Detection.Assumptions)
}

func TestService_Run_CumulativeReserve(t *testing.T) {
	contract := domain.DefaultContractTerms()
	contract.RollingReserveCap = dec("50")
	svc := NewService(logger.New(), contract, Options{CumulativeReserve: true})

	// dates descend in input order: the tracker must process them
	// oldest-first and cap the three newest
	rows := make([]domain.TransactionRow, 0, 8)
	for i := 0; i < 8; i++ {
		amount := dec("100")
		rows = append(rows, statementRow(i, amount,
			amount.Mul(contract.RemunerationRate).Round(2),
			dec("10.00"),
			day(7-i)))
	}

	result, err := svc.Run(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, result.Verifications, 8)

	// input order preserved
	for i, v := range result.Verifications {
		assert.Equal(t, fmt.Sprintf("TX-%03d", i), v.TransactionID)
	}

	// positions 0..2 carry the newest dates, so the cap has already
	// been reached when the tracker gets to them
	for i := 0; i < 3; i++ {
		check := result.Verifications[i].Checks[domain.FeeRollingReserve]
		assert.Equal(t, domain.FeeOvercharged, check.Status, "position %d", i)
		assert.Equal(t, "0.00", check.Expected.StringFixed(2))
	}
	for i := 3; i < 8; i++ {
		check := result.Verifications[i].Checks[domain.FeeRollingReserve]
		assert.Equal(t, domain.FeeCorrect, check.Status, "position %d", i)
	}

	require.NotNil(t, result.Reserve)
	assert.Equal(t, "50.00", result.Reserve.CurrentBalance.StringFixed(2))
	assert.Equal(t, "100.00", result.Reserve.UtilizationPct.StringFixed(2))
	assert.Equal(t, 8, result.Reserve.HoldingCount)
}

func TestService_Run_UnreadableRowStillVerified(t *testing.T) {
	contract := domain.DefaultContractTerms()
	svc := NewService(logger.New(), contract, Options{})

	rows := []domain.TransactionRow{
		statementRow(1, dec("1000"), dec("38.00"), dec("100.00"), day(1)),
		statementRow(2, dec("1000"), dec("38.00"), dec("100.00"), day(2)),
	}
	rows[1].Values["amount"] = domain.TextValue("n/a")

	result, err := svc.Run(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, result.Verifications, 2)

	broken := result.Verifications[1]
	assert.Contains(t, broken.MissingData, "amount (invalid value)")
	assert.GreaterOrEqual(t, broken.ErrorCount, 1)
	assert.Equal(t, domain.VerificationCorrect, result.Verifications[0].OverallStatus)
}

func TestService_Run_EmptyInput(t *testing.T) {
	svc := NewService(logger.New(), domain.DefaultContractTerms(), Options{})
	_, err := svc.Run(context.Background(), nil)
	require.Error(t, err)
}

func TestService_Run_InvalidContract(t *testing.T) {
	contract := domain.DefaultContractTerms()
	contract.RemunerationRate = dec("2")
	svc := NewService(logger.New(), contract, Options{})

	_, err := svc.Run(context.Background(), []domain.TransactionRow{
		statementRow(1, dec("100"), dec("3.80"), dec("10.00"), day(1)),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid contract")
}

func TestService_Run_Canceled(t *testing.T) {
	contract := domain.DefaultContractTerms()
	svc := NewService(logger.New(), contract, Options{Workers: 2})

	rows := make([]domain.TransactionRow, 0, 500)
	for i := 1; i <= 500; i++ {
		amount := decimal.NewFromInt(int64(i))
		rows = append(rows, statementRow(i, amount,
			amount.Mul(contract.RemunerationRate).Round(2),
			amount.Mul(contract.RollingReserveRate).Round(2),
			day(i%30)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Run(ctx, rows)
	require.Error(t, err)
}
