package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pastrop/feeaudit/internal/ingestion"
)

var inspectInput string

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectInput, "input", "", "Transaction statement to inspect, CSV or JSON (required)")
	_ = inspectCmd.MarkFlagRequired("input")
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show how a statement's columns will be read",
	Long: `Show how a statement's columns will be read.

Discovery mode: prints every header with its normalized name and the
canonical field it maps to, without running any analysis. Use it to check
an unfamiliar export before a verification run.

Examples:
  feeaudit inspect --input july.csv`,
	RunE: runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(inspectInput)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	insp, err := ingestion.Inspect(data, inspectInput)
	if err != nil {
		return err
	}

	fmt.Printf("Source:     %s\n", insp.Source)
	fmt.Printf("Format:     %s\n", insp.Format)
	if insp.Format == ingestion.FormatCSV {
		fmt.Printf("Header row: %d\n", insp.HeaderRow+1)
	}
	fmt.Printf("Data rows:  %d\n", insp.RowCount)
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COLUMN\tNORMALIZED\tMAPPED TO")
	for _, col := range insp.Columns {
		mapped := insp.Mappings[col]
		if mapped == "" {
			mapped = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", col, insp.Normalized[col], mapped)
	}
	return w.Flush()
}
