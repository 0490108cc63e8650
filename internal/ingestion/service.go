package ingestion

import (
	"bytes"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/pastrop/feeaudit/internal/domain"
)

// Format identifies a supported transaction file encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// DetectFormat picks the loader for a file: by extension when the
// name has one, by sniffing the first byte otherwise.
func DetectFormat(name string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV
	case ".json":
		return FormatJSON
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		return FormatJSON
	}
	return FormatCSV
}

// Load parses a transaction file into rows with the format-matched
// loader. The source label (file name without extension) rides on
// every row for per-source report breakdowns and row fallback ids.
func Load(data []byte, name string) ([]domain.TransactionRow, []string, error) {
	source := SourceName(name)
	switch DetectFormat(name, data) {
	case FormatJSON:
		return LoadJSON(data, source)
	default:
		return LoadCSV(data, source)
	}
}

// Fingerprint hashes the raw input bytes. Runs store it so
// re-ingesting the same file is caught before any work happens.
func Fingerprint(data []byte) string {
	digest := xxhash.New()
	digest.Write(data)
	return hex.EncodeToString(digest.Sum(nil))
}

// SourceName derives the row source label from a file name.
func SourceName(name string) string {
	base := filepath.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Inspection describes a file's structure without running analysis.
// Discovery mode prints it so operators can see how headers will be
// read before committing to a verification run.
type Inspection struct {
	Source     string            `json:"source"`
	Format     Format            `json:"format"`
	HeaderRow  int               `json:"header_row"`
	Columns    []string          `json:"columns"`
	Normalized map[string]string `json:"normalized"`
	Mappings   map[string]string `json:"detected_mappings,omitempty"`
	RowCount   int               `json:"row_count"`
}

// Inspect reads just enough of a file to report its headers, their
// normalized names and which known alias mappings fired.
func Inspect(data []byte, name string) (*Inspection, error) {
	insp := &Inspection{
		Source:     SourceName(name),
		Format:     DetectFormat(name, data),
		Normalized: make(map[string]string),
		Mappings:   make(map[string]string),
	}
	switch insp.Format {
	case FormatJSON:
		rawKeys, err := objectKeys(data)
		if err != nil {
			return nil, fmt.Errorf("scan json keys: %w", err)
		}
		var objects []json.RawMessage
		if err := json.Unmarshal(data, &objects); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		insp.Columns = rawKeys
		insp.RowCount = len(objects)
	default:
		reader := csv.NewReader(bytes.NewReader(data))
		reader.TrimLeadingSpace = true
		reader.FieldsPerRecord = -1
		records, err := reader.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("csv is empty")
		}
		insp.HeaderRow = DetectHeaderRow(records)
		insp.Columns = records[insp.HeaderRow]
		insp.RowCount = len(records) - insp.HeaderRow - 1
	}
	for _, raw := range insp.Columns {
		insp.Normalized[raw] = NormalizeHeader(raw)
		if canonical, ok := KnownHeader(raw); ok {
			insp.Mappings[raw] = canonical
		}
	}
	return insp, nil
}
