package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pastrop/feeaudit/internal/domain"
)

// LoadJSON parses an array of flat JSON objects into transaction rows.
// Column order follows first appearance in the token stream (a plain
// map decode would scramble it), so downstream output keeps the
// file's own column order. Keys missing from an object become nulls.
func LoadJSON(data []byte, source string) ([]domain.TransactionRow, []string, error) {
	var objects []map[string]json.RawMessage
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, nil, fmt.Errorf("decode json: %w", err)
	}
	if len(objects) == 0 {
		return nil, nil, fmt.Errorf("json array is empty")
	}

	rawKeys, err := objectKeys(data)
	if err != nil {
		return nil, nil, fmt.Errorf("scan json keys: %w", err)
	}
	columns := normalizeColumns(rawKeys)

	rows := make([]domain.TransactionRow, 0, len(objects))
	for i, obj := range objects {
		row := domain.TransactionRow{
			Index:   i + 1,
			Source:  source,
			Columns: columns,
			Values:  make(map[string]domain.Value, len(columns)),
		}
		for j, rawKey := range rawKeys {
			col := columns[j]
			raw, ok := obj[rawKey]
			if !ok {
				row.Values[col] = domain.NullValue()
				continue
			}
			row.Values[col] = jsonValue(col, raw)
		}
		rows = append(rows, row)
	}
	return rows, columns, nil
}

// jsonValue types one raw JSON value. Numbers keep their literal
// digits (no float round trip), strings go through the same cell
// parser the CSV loader uses.
func jsonValue(column string, raw json.RawMessage) domain.Value {
	token := bytes.TrimSpace(raw)
	if len(token) == 0 || bytes.Equal(token, []byte("null")) {
		return domain.NullValue()
	}
	switch token[0] {
	case '"':
		var s string
		if err := json.Unmarshal(token, &s); err != nil {
			return domain.TextValue(string(token))
		}
		return ParseValue(column, s)
	case '{', '[', 't', 'f':
		return domain.TextValue(string(token))
	default:
		if textColumn(column) {
			return domain.TextValue(string(token))
		}
		d, err := decimal.NewFromString(string(token))
		if err != nil {
			return domain.TextValue(string(token))
		}
		return domain.NumberValue(d, string(token))
	}
}

// objectKeys walks the token stream and returns every object key in
// the array, in first-seen order.
func objectKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var keys []string
	seen := make(map[string]bool)
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := tok.(string)
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
			if err := skipValue(dec); err != nil {
				return nil, err
			}
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); ok && (d == '{' || d == '[') {
		for dec.More() {
			if err := skipValue(dec); err != nil {
				return err
			}
		}
		_, err = dec.Token()
		return err
	}
	return nil
}
