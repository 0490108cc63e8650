package cluster

import (
	"fmt"
	"strings"
	"time"

	"github.com/pastrop/feeaudit/internal/domain"
)

// TextReportMeta carries run provenance for the rendered report header.
type TextReportMeta struct {
	InputFile   string
	SourceName  string
	GeneratedAt time.Time
}

// RenderText renders the cluster report as plain text: run header, the
// clusters in discovery order with their per-algorithm detail lines,
// then the rate summary.
func RenderText(report *domain.ClusterReport, meta TextReportMeta) string {
	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = time.Now()
	}

	var b strings.Builder
	rule := strings.Repeat("=", 80)
	thin := strings.Repeat("-", 80)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "RATE CLUSTER ANALYSIS")
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Generated: %s\n", meta.GeneratedAt.Format("2006-01-02 15:04:05"))
	if meta.InputFile != "" {
		fmt.Fprintf(&b, "Input: %s\n", meta.InputFile)
	}
	if meta.SourceName != "" {
		fmt.Fprintf(&b, "Source: %s\n", meta.SourceName)
	}
	fmt.Fprintln(&b)

	fmt.Fprintf(&b, "Algorithm:           %s\n", report.Algorithm)
	fmt.Fprintf(&b, "Total Transactions:  %d\n", report.TotalTransactions)
	fmt.Fprintf(&b, "Valid Transactions:  %d\n", report.ValidTransactions)
	fmt.Fprintf(&b, "Clusters Found:      %d\n", report.ClusterCount)
	if report.OutlierCount > 0 {
		fmt.Fprintf(&b, "Outliers:            %d (%.1f%%)\n", report.OutlierCount, report.OutlierPercentage)
	}
	fmt.Fprintln(&b)

	if report.Error != "" {
		fmt.Fprintln(&b, "ANALYSIS STOPPED")
		fmt.Fprintln(&b, thin)
		fmt.Fprintf(&b, "%s\n", report.Error)
		fmt.Fprintln(&b, rule)
		return b.String()
	}

	fmt.Fprintln(&b, "RATE CLUSTERS")
	fmt.Fprintln(&b, thin)
	for _, c := range report.Clusters {
		line := fmt.Sprintf("* %.4f%%", c.RatePercent)
		if c.MinimalFee != nil && *c.MinimalFee > 0 {
			line += fmt.Sprintf(" + %.2f minimal fee", *c.MinimalFee)
		}
		line += fmt.Sprintf(" - %d transactions (%.1f%%)", c.TransactionCount, c.PercentageOfTotal)
		fmt.Fprintln(&b, line)

		if c.MinRatePercent != nil && c.MaxRatePercent != nil {
			fmt.Fprintf(&b, "    Range: %.4f%% - %.4f%%", *c.MinRatePercent, *c.MaxRatePercent)
			if c.RateStdDev != nil {
				fmt.Fprintf(&b, "  (std dev %.4f)", *c.RateStdDev)
			}
			fmt.Fprintln(&b)
		}
		if c.FitQuality != nil {
			fmt.Fprintf(&b, "    Fit quality (R^2): %.4f\n", *c.FitQuality)
		}
		if len(c.AmountRange) == 2 {
			fmt.Fprintf(&b, "    Amount range: %.2f - %.2f\n", c.AmountRange[0], c.AmountRange[1])
		}
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "SUMMARY")
	fmt.Fprintln(&b, thin)
	writeSummaryLine(&b, "Dominant rate:", report.Summary.DominantRatePercent, "%")
	writeSummaryLine(&b, "Dominant minimal fee:", report.Summary.DominantMinimalFee, "")
	writeSummaryLine(&b, "Dominant share:", report.Summary.DominantSharePercent, "%")
	writeSummaryLine(&b, "Min rate:", report.Summary.MinRatePercent, "%")
	writeSummaryLine(&b, "Max rate:", report.Summary.MaxRatePercent, "%")
	writeSummaryLine(&b, "Mean rate:", report.Summary.MeanRatePercent, "%")
	writeSummaryLine(&b, "Median rate:", report.Summary.MedianRatePercent, "%")
	fmt.Fprintln(&b, rule)

	return b.String()
}

func writeSummaryLine(b *strings.Builder, label string, v *float64, suffix string) {
	if v == nil {
		return
	}
	fmt.Fprintf(b, "%-22s %g%s\n", label, *v, suffix)
}
