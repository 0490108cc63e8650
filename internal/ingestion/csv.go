package ingestion

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/pastrop/feeaudit/internal/domain"
)

// LoadCSV parses a CSV export into transaction rows. The header row is
// located with DetectHeaderRow (some exports open with a title line),
// headers are normalized, and every data record becomes one
// TransactionRow. Bad cells degrade to text or null; only malformed
// CSV framing aborts the load.
func LoadCSV(data []byte, source string) ([]domain.TransactionRow, []string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("csv is empty")
	}

	headerIdx := DetectHeaderRow(records)
	columns := normalizeColumns(records[headerIdx])

	rows := make([]domain.TransactionRow, 0, len(records)-headerIdx-1)
	for i, record := range records[headerIdx+1:] {
		row := domain.TransactionRow{
			Index:   i + 1,
			Source:  source,
			Columns: columns,
			Values:  make(map[string]domain.Value, len(columns)),
		}
		for j, col := range columns {
			if j >= len(record) {
				row.Values[col] = domain.NullValue()
				continue
			}
			row.Values[col] = ParseValue(col, record[j])
		}
		rows = append(rows, row)
	}
	return rows, columns, nil
}

// normalizeColumns normalizes a raw header record and disambiguates
// collisions ("Комиссия" and "commission" in one file) with numeric
// suffixes so no cell is silently dropped.
func normalizeColumns(header []string) []string {
	columns := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, raw := range header {
		name := NormalizeHeader(raw)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		columns[i] = name
	}
	return columns
}

// headerKeywords mark a cell as a likely column header, in either
// language the exports ship.
var headerKeywords = []string{
	"date", "amount", "commission", "fee", "sum", "id",
	"transaction", "refund", "chargeback", "reserve", "qty",
	"дата", "сумма", "комиссия", "резерв", "возврат", "чарджбэк",
}

// DetectHeaderRow scores the first two records and returns the index
// of the one that looks like the header. Exports that open with a
// report title or period line score low on row 0.
func DetectHeaderRow(records [][]string) int {
	if len(records) == 0 {
		return 0
	}
	row0 := scoreHeaderRow(records[0])
	if len(records) > 1 {
		row1 := scoreHeaderRow(records[1])
		if row1 > row0 && row1 >= 2 {
			return 1
		}
	}
	return 0
}

func scoreHeaderRow(record []string) int {
	score := 0
	for _, cell := range record {
		cell = strings.ToLower(strings.TrimSpace(cell))
		if cell == "" {
			continue
		}
		for _, kw := range headerKeywords {
			if strings.Contains(cell, kw) {
				score += 2
				break
			}
		}
		// data rows are mostly numbers, header rows mostly words
		if !numericCell(cell) {
			score++
		}
	}
	return score
}

func numericCell(cell string) bool {
	stripped := strings.NewReplacer(".", "", ",", "", "-", "").Replace(cell)
	if stripped == "" {
		return false
	}
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
