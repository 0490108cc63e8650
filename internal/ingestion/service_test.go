package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatCSV, DetectFormat("tx.csv", nil))
	assert.Equal(t, FormatJSON, DetectFormat("tx.json", nil))
	assert.Equal(t, FormatJSON, DetectFormat("upload", []byte(`  [{"a":1}]`)))
	assert.Equal(t, FormatCSV, DetectFormat("upload", []byte("a,b,c\n1,2,3\n")))
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("amount,commission\n100,3.80\n"))
	b := Fingerprint([]byte("amount,commission\n100,3.80\n"))
	c := Fingerprint([]byte("amount,commission\n100,3.81\n"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestSourceName(t *testing.T) {
	assert.Equal(t, "july", SourceName("statements/july.csv"))
	assert.Equal(t, "export", SourceName("export.json"))
	assert.Equal(t, "", SourceName(""))
}

func TestLoad_DispatchesByFormat(t *testing.T) {
	rows, _, err := Load([]byte("amount,commission\n100.00,3.80\n"), "july.csv")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "july", rows[0].Source)

	rows, _, err = Load([]byte(`[{"amount": 100.0, "commission": 3.8}]`), "gateway.json")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "gateway", rows[0].Source)
}

func TestInspect(t *testing.T) {
	t.Run("csv with title line", func(t *testing.T) {
		data := []byte("Settlement report for July,,,,,\n" +
			"Номер,Сумма,Комиссия,RR,Дата,Merchant\n" +
			"1,100,3.80,10,2025-07-01,ACME\n")
		insp, err := Inspect(data, "report.csv")
		require.NoError(t, err)
		assert.Equal(t, FormatCSV, insp.Format)
		assert.Equal(t, 1, insp.HeaderRow)
		assert.Equal(t, 1, insp.RowCount)
		assert.Equal(t, "amount", insp.Normalized["Сумма"])
		assert.Equal(t, "rolling_reserve", insp.Mappings["RR"])
		assert.NotContains(t, insp.Mappings, "Merchant")
	})

	t.Run("json keys in file order", func(t *testing.T) {
		data := []byte(`[{"Transaction ID": "TX-1", "Amount": 10}]`)
		insp, err := Inspect(data, "gw.json")
		require.NoError(t, err)
		assert.Equal(t, FormatJSON, insp.Format)
		assert.Equal(t, []string{"Transaction ID", "Amount"}, insp.Columns)
		assert.Equal(t, "transaction_id", insp.Mappings["Transaction ID"])
		assert.Equal(t, 1, insp.RowCount)
	})
}
