package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHeader(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Сумма", "amount"},
		{"  сумма ", "amount"},
		{"Оборот EUR", "amount"},
		{"Комиссия", "commission"},
		{"Вознаграждение", "commission"},
		{"commission_eur", "commission"},
		{"Commission EUR", "commission"},
		{"Резерв", "rolling_reserve"},
		{"RR", "rolling_reserve"},
		{"Rolling Reserve", "rolling_reserve"},
		{"CHB кол-во", "chargeback_qty"},
		{"CHB fix 50 euro", "chargeback_fee_collected"},
		{"Refund кол-во", "refund_qty"},
		{"Refund fix 5 euro", "refund_fee_collected"},
		{"Номер транзакции", "transaction_id"},
		{"ID", "transaction_id"},
		{"Дата", "date"},
		{"Статус", "status"},
		{"State", "status"},

		// unknown headers fall back to lowercase with underscores
		{"Merchant Name", "merchant_name"},
		{"settlement_batch", "settlement_batch"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeHeader(tc.header), "header=%q", tc.header)
	}
}

func TestKnownHeader(t *testing.T) {
	canonical, ok := KnownHeader("Комиссия EUR")
	assert.True(t, ok)
	assert.Equal(t, "commission", canonical)

	_, ok = KnownHeader("merchant_name")
	assert.False(t, ok)
}
