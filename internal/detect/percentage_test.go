package detect

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pastrop/feeaudit/internal/domain"
)

func percentageRows(n int) []domain.TransactionRow {
	columns := []string{"transaction_id", "amount", "commission_main", "comm_reserve"}
	rows := make([]domain.TransactionRow, n)
	for i := 0; i < n; i++ {
		amount := decimal.NewFromInt(int64(100 + i))
		rows[i] = domain.TransactionRow{
			Index:   i + 1,
			Columns: columns,
			Values: map[string]domain.Value{
				"transaction_id":  domain.TextValue(fmt.Sprintf("TX-%03d", i+1)),
				"amount":          domain.NumberValue(amount, amount.String()),
				"commission_main": domain.NumberValue(amount.Mul(decimal.NewFromFloat(0.038)), ""),
				"comm_reserve":    domain.NumberValue(amount.Mul(decimal.NewFromFloat(0.10)), ""),
			},
		}
	}
	return rows
}

func TestClassifyByPercentage(t *testing.T) {
	rows := percentageRows(30)

	res := ClassifyByPercentage(rows, "amount", 3.8, 10.0)

	assert.Equal(t, "commission_main", res.RemunerationColumn)
	assert.Equal(t, "comm_reserve", res.RollingReserveColumn)
	require.Len(t, res.Assumptions, 2)
	assert.Contains(t, res.Assumptions[0], "commission_main")
	assert.Contains(t, res.Assumptions[0], "Remuneration")
	assert.Contains(t, res.Assumptions[1], "Rolling Reserve")

	main := res.Analysis["commission_main"]
	assert.Equal(t, "remuneration", main.Matches)
	assert.InDelta(t, 3.8, main.AvgPercentage, 0.001)
	assert.Equal(t, 30, main.SampleCount)

	reserve := res.Analysis["comm_reserve"]
	assert.Equal(t, "rolling_reserve", reserve.Matches)
	assert.InDelta(t, 10.0, reserve.AvgPercentage, 0.001)
}

func TestClassifyByPercentage_SampleCap(t *testing.T) {
	rows := percentageRows(120)

	res := ClassifyByPercentage(rows, "amount", 3.8, 10.0)
	assert.Equal(t, 50, res.Analysis["commission_main"].SampleCount)
}

func TestClassifyByPercentage_SkipsInvalidRows(t *testing.T) {
	rows := percentageRows(20)
	zero := decimal.Zero
	rows = append(rows, domain.TransactionRow{
		Index:   21,
		Columns: rows[0].Columns,
		Values: map[string]domain.Value{
			"amount":          domain.NumberValue(zero, "0"),
			"commission_main": domain.NumberValue(decimal.NewFromInt(5), "5"),
		},
	})
	rows = append(rows, domain.TransactionRow{
		Index:   22,
		Columns: rows[0].Columns,
		Values: map[string]domain.Value{
			"amount":          domain.NumberValue(decimal.NewFromInt(200), "200"),
			"commission_main": domain.NullValue(),
		},
	})

	res := ClassifyByPercentage(rows, "amount", 3.8, 10.0)
	assert.Equal(t, 20, res.Analysis["commission_main"].SampleCount)
}

func TestClassifyByPercentage_NoMatchOutsideTolerance(t *testing.T) {
	columns := []string{"amount", "commission_odd"}
	rows := make([]domain.TransactionRow, 15)
	for i := range rows {
		amount := decimal.NewFromInt(int64(50 + i))
		rows[i] = domain.TransactionRow{
			Index:   i + 1,
			Columns: columns,
			Values: map[string]domain.Value{
				"amount":         domain.NumberValue(amount, ""),
				"commission_odd": domain.NumberValue(amount.Mul(decimal.NewFromFloat(0.07)), ""),
			},
		}
	}

	res := ClassifyByPercentage(rows, "amount", 3.8, 10.0)
	assert.Empty(t, res.RemunerationColumn)
	assert.Empty(t, res.RollingReserveColumn)
	assert.Empty(t, res.Assumptions)
	assert.Equal(t, "unknown", res.Analysis["commission_odd"].Matches)
}

func TestClassifyByPercentage_NoAmountColumn(t *testing.T) {
	res := ClassifyByPercentage(percentageRows(5), "", 3.8, 10.0)
	assert.Empty(t, res.RemunerationColumn)
	assert.Empty(t, res.Analysis)
}
