package verify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pastrop/feeaudit/internal/domain"
)

const maxTableColWidth = 30

// TextReportMeta carries run provenance for the rendered report header.
type TextReportMeta struct {
	ContractFile string
	InputFile    string
	SourceName   string
	GeneratedAt  time.Time
}

// RenderText renders the human-readable batch report: summary counts,
// erroneous transactions grouped by fee type with the largest
// discrepancies first, questionable rows with their assumptions, and
// every missing-data line.
func RenderText(result *Result, meta TextReportMeta) string {
	threshold := result.Threshold
	if threshold <= 0 {
		threshold = 0.5
	}
	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = time.Now()
	}

	var b strings.Builder
	rule := strings.Repeat("=", 80)
	thin := strings.Repeat("-", 80)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "FEE VERIFICATION REPORT")
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Generated: %s\n", meta.GeneratedAt.Format("2006-01-02 15:04:05"))
	if meta.ContractFile != "" {
		fmt.Fprintf(&b, "Contract: %s\n", meta.ContractFile)
	}
	if meta.InputFile != "" {
		fmt.Fprintf(&b, "Input: %s\n", meta.InputFile)
	}
	if meta.SourceName != "" {
		fmt.Fprintf(&b, "Source: %s\n", meta.SourceName)
	}
	fmt.Fprintln(&b)

	if len(result.Detection.Assumptions) > 0 {
		fmt.Fprintln(&b, "DETECTION ASSUMPTIONS")
		fmt.Fprintln(&b, thin)
		for _, a := range result.Detection.Assumptions {
			fmt.Fprintf(&b, "* %s\n", a)
		}
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, rule)
		fmt.Fprintln(&b)
	}

	s := result.Summary
	fmt.Fprintln(&b, "SUMMARY")
	fmt.Fprintln(&b, thin)
	fmt.Fprintf(&b, "Total Transactions:        %d\n", s.TotalTransactions)
	fmt.Fprintf(&b, "Correct:                   %d\n", s.CorrectCount)
	fmt.Fprintf(&b, "Erroneous:                 %d\n", s.ErroneousCount)
	fmt.Fprintf(&b, "Questionable:              %d\n", s.QuestionableCount)
	fmt.Fprintf(&b, "Missing Data:              %d\n", s.MissingDataCount)
	fmt.Fprintf(&b, "Accuracy Rate:             %.2f%%\n", s.AccuracyRate)
	fmt.Fprintf(&b, "Total Discrepancy Amount:  %s\n", s.TotalDiscrepancy.StringFixed(2))
	fmt.Fprintf(&b, "  (Complete Data Only):    %s\n", s.TotalDiscrepancyComplete.StringFixed(2))
	fmt.Fprintln(&b)

	writeSourceBreakdown(&b, result.Verifications, threshold, thin)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b)

	writeErroneousSection(&b, result.Verifications, threshold, thin)
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b)
	writeQuestionableSection(&b, result.Verifications, threshold, thin)
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b)
	writeMissingSection(&b, result.Verifications, threshold, thin)
	fmt.Fprintln(&b, rule)

	return b.String()
}

// writeSourceBreakdown prints per-source counts when the fallback row
// identifiers reveal more than one source (format "Source:RowN").
func writeSourceBreakdown(b *strings.Builder, verifications []*domain.TransactionVerification, threshold float64, thin string) {
	type counts struct{ total, correct, erroneous, questionable, missing int }
	stats := make(map[string]*counts)
	for _, v := range verifications {
		source := "unknown"
		if i := strings.Index(v.TransactionID, ":"); i > 0 {
			source = v.TransactionID[:i]
		}
		c := stats[source]
		if c == nil {
			c = &counts{}
			stats[source] = c
		}
		c.total++
		switch Categorize(v, threshold) {
		case CategoryQuestionable:
			c.questionable++
		case CategoryErroneous:
			c.erroneous++
		case CategoryMissingData:
			c.missing++
		default:
			c.correct++
		}
	}
	if len(stats) < 2 {
		return
	}

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(b, "BREAKDOWN BY SOURCE")
	fmt.Fprintln(b, thin)
	for _, name := range names {
		c := stats[name]
		fmt.Fprintf(b, "%s:\n", name)
		fmt.Fprintf(b, "  Total: %d | Correct: %d | Erroneous: %d | Questionable: %d | Missing Data: %d\n",
			c.total, c.correct, c.erroneous, c.questionable, c.missing)
	}
	fmt.Fprintln(b)
}

func writeErroneousSection(b *strings.Builder, verifications []*domain.TransactionVerification, threshold float64, thin string) {
	type errorLine struct {
		txID    string
		check   domain.FeeCheck
		absDiff decimal.Decimal
	}
	byType := make(map[domain.FeeType][]errorLine)
	for _, v := range verifications {
		if Categorize(v, threshold) != CategoryErroneous {
			continue
		}
		for feeType, check := range v.Checks {
			if check.Status == domain.FeeMissing || check.WithinTolerance {
				continue
			}
			var abs decimal.Decimal
			if check.Difference != nil {
				abs = check.Difference.Abs()
			}
			byType[feeType] = append(byType[feeType], errorLine{txID: v.TransactionID, check: check, absDiff: abs})
		}
	}

	fmt.Fprintln(b, "ERRONEOUS TRANSACTIONS")
	fmt.Fprintln(b, thin)
	if len(byType) == 0 {
		fmt.Fprintln(b, "No erroneous transactions found.")
		fmt.Fprintln(b)
		return
	}
	fmt.Fprintln(b)

	for _, feeType := range feeTypeOrder {
		lines := byType[feeType]
		if len(lines) == 0 {
			continue
		}
		sort.SliceStable(lines, func(i, j int) bool {
			return lines[i].absDiff.GreaterThan(lines[j].absDiff)
		})

		fmt.Fprintf(b, "%s Errors (%d transactions)\n", feeTypeTitle(feeType), len(lines))
		fmt.Fprintln(b, thin)

		rows := make([][]string, 0, len(lines))
		for _, line := range lines {
			actual := "MISSING"
			if line.check.Actual != nil {
				actual = line.check.Actual.StringFixed(2)
			}
			diff := "N/A"
			if line.check.Difference != nil {
				sign := ""
				if line.check.Difference.IsPositive() {
					sign = "+"
				}
				diff = sign + line.check.Difference.StringFixed(2)
			}
			rows = append(rows, []string{line.txID, line.check.Expected.StringFixed(2), actual, diff})
		}
		fmt.Fprintln(b, asciiTable([]string{"Transaction ID", "Expected", "Actual", "Difference"}, rows))
		fmt.Fprintln(b)
	}
}

func writeQuestionableSection(b *strings.Builder, verifications []*domain.TransactionVerification, threshold float64, thin string) {
	var rows [][]string
	for _, v := range verifications {
		if Categorize(v, threshold) != CategoryQuestionable {
			continue
		}
		reason := "Low confidence"
		if len(v.Assumptions) > 0 {
			reason = strings.Join(v.Assumptions, "; ")
		}
		if len(reason) > 50 {
			reason = reason[:50]
		}
		rows = append(rows, []string{v.TransactionID, reason, fmt.Sprintf("%.2f", v.Confidence)})
	}

	fmt.Fprintln(b, "QUESTIONABLE TRANSACTIONS")
	fmt.Fprintln(b, thin)
	if len(rows) == 0 {
		fmt.Fprintln(b, "No questionable transactions found.")
		fmt.Fprintln(b)
		return
	}
	fmt.Fprintln(b)
	fmt.Fprintln(b, asciiTable([]string{"Transaction ID", "Reason", "Confidence"}, rows))
	fmt.Fprintln(b)
}

// writeMissingSection lists every MISSING fee line from non-questionable
// rows, since erroneous transactions can also carry missing fees.
func writeMissingSection(b *strings.Builder, verifications []*domain.TransactionVerification, threshold float64, thin string) {
	var rows [][]string
	for _, v := range verifications {
		if Categorize(v, threshold) == CategoryQuestionable {
			continue
		}
		for _, feeType := range feeTypeOrder {
			check, ok := v.Checks[feeType]
			if !ok || check.Status != domain.FeeMissing {
				continue
			}
			rows = append(rows, []string{v.TransactionID, feeTypeTitle(feeType), check.Expected.StringFixed(2), "MISSING"})
		}
	}

	fmt.Fprintln(b, "MISSING DATA TRANSACTIONS")
	fmt.Fprintln(b, thin)
	if len(rows) == 0 {
		fmt.Fprintln(b, "No transactions with missing data found.")
		fmt.Fprintln(b)
		return
	}
	fmt.Fprintln(b)
	fmt.Fprintln(b, asciiTable([]string{"Transaction ID", "Fee Type", "Expected", "Actual"}, rows))
	fmt.Fprintln(b)
}

func feeTypeTitle(feeType domain.FeeType) string {
	words := strings.Split(string(feeType), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// asciiTable renders rows in a box-drawing table, truncating cells wider
// than maxTableColWidth.
func asciiTable(headers []string, rows [][]string) string {
	if len(rows) == 0 {
		return "No data to display"
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
		for _, row := range rows {
			if i < len(row) && len(row[i]) > widths[i] {
				widths[i] = len(row[i])
			}
		}
		if widths[i] > maxTableColWidth {
			widths[i] = maxTableColWidth
		}
	}

	segment := make([]string, len(widths))
	for i, w := range widths {
		segment[i] = strings.Repeat("─", w+2)
	}

	var b strings.Builder
	b.WriteString("┌" + strings.Join(segment, "┬") + "┐\n")
	b.WriteString(tableRow(headers, widths))
	b.WriteString("├" + strings.Join(segment, "┼") + "┤\n")
	for _, row := range rows {
		b.WriteString(tableRow(row, widths))
	}
	b.WriteString("└" + strings.Join(segment, "┴") + "┘")
	return b.String()
}

func tableRow(cells []string, widths []int) string {
	var b strings.Builder
	b.WriteString("│")
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		if len(cell) > w {
			cell = cell[:w-3] + "..."
		}
		fmt.Fprintf(&b, " %-*s │", w, cell)
	}
	b.WriteString("\n")
	return b.String()
}
