package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pastrop/feeaudit/internal/cluster"
	"github.com/pastrop/feeaudit/internal/domain"
	"github.com/pastrop/feeaudit/internal/ingestion"
)

var (
	analyzeInput       string
	analyzeAlgorithm   string
	analyzeClusters    int
	analyzeMaxClusters int
	analyzeMinSize     int
	analyzeMinRateDiff float64
	analyzeSeed        int64
	analyzeJSONOut     string
)

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&analyzeInput, "input", "", "Transaction statement to analyze, CSV or JSON (required)")
	analyzeCmd.Flags().StringVar(&analyzeAlgorithm, "algorithm", "sorting", "Clustering algorithm: sorting or kmeans")
	analyzeCmd.Flags().IntVar(&analyzeClusters, "clusters", 0, "Exact number of clusters to fit (kmeans only, 0 picks automatically)")
	analyzeCmd.Flags().IntVar(&analyzeMaxClusters, "max-clusters", 0, "Upper bound on clusters to try (kmeans only)")
	analyzeCmd.Flags().IntVar(&analyzeMinSize, "min-cluster-size", 0, "Minimum transactions per reported cluster")
	analyzeCmd.Flags().Float64Var(&analyzeMinRateDiff, "min-rate-diff", 0, "Rate gap in percentage points that separates clusters (sorting only)")
	analyzeCmd.Flags().Int64Var(&analyzeSeed, "seed", 0, "Random seed for kmeans initialization")
	analyzeCmd.Flags().StringVar(&analyzeJSONOut, "json", "", "Also write the full report as JSON to this file")
	_ = analyzeCmd.MarkFlagRequired("input")
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Discover the commission rate structure of a statement",
	Long: `Discover the commission rate structure of a statement.

The amount and commission columns are located by fuzzy header matching, so
statements with Russian or abbreviated headers work without preparation.

Examples:
  # Scan for rate clusters with the default sorting algorithm
  feeaudit analyze --input july.csv

  # Force a three-cluster k-means fit and keep the JSON report
  feeaudit analyze --input july.csv --algorithm kmeans --clusters 3 --json report.json`,
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(analyzeInput)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	rows, _, err := ingestion.Load(data, analyzeInput)
	if err != nil {
		return err
	}

	var algorithm domain.ClusterAlgorithm
	switch analyzeAlgorithm {
	case "sorting", "sorting_scan":
		algorithm = domain.AlgorithmSorting
	case "kmeans", "kmeans_linear":
		algorithm = domain.AlgorithmKMeans
	default:
		return fmt.Errorf("unknown algorithm %q (want sorting or kmeans)", analyzeAlgorithm)
	}

	out, err := cluster.NewService(cliLogger()).Run(rows, cluster.RunOptions{
		Algorithm: algorithm,
		Sorting: cluster.SortingParams{
			MinRateDiff:    analyzeMinRateDiff,
			MinClusterSize: analyzeMinSize,
		},
		KMeans: cluster.KMeansParams{
			NumClusters:    analyzeClusters,
			MaxClusters:    analyzeMaxClusters,
			MinClusterSize: analyzeMinSize,
			Seed:           analyzeSeed,
		},
	})
	if err != nil {
		return err
	}

	fmt.Print(cluster.RenderText(out.Report, cluster.TextReportMeta{
		InputFile:   analyzeInput,
		SourceName:  ingestion.SourceName(analyzeInput),
		GeneratedAt: time.Now(),
	}))

	if analyzeJSONOut != "" {
		return writeJSONFile(analyzeJSONOut, out)
	}
	return nil
}
