package main

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/pastrop/feeaudit/internal/domain"
	"github.com/pastrop/feeaudit/internal/ingestion"
	"github.com/pastrop/feeaudit/internal/verify"
)

var (
	verifyInput      string
	verifyContract   string
	verifyTolerance  string
	verifyThreshold  float64
	verifyCumulative bool
	verifyJSONOut    string
)

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVar(&verifyInput, "input", "", "Transaction statement to verify, CSV or JSON (required)")
	verifyCmd.Flags().StringVar(&verifyContract, "contract", "", "Contract terms JSON (standard terms when omitted)")
	verifyCmd.Flags().StringVar(&verifyTolerance, "tolerance", "", "Acceptable absolute fee difference, e.g. 0.01")
	verifyCmd.Flags().Float64Var(&verifyThreshold, "confidence-threshold", 0, "Column detection confidence below which rows are questionable")
	verifyCmd.Flags().BoolVar(&verifyCumulative, "cumulative-reserve", false, "Track the rolling reserve balance across the whole statement")
	verifyCmd.Flags().StringVar(&verifyJSONOut, "json", "", "Also write the full result as JSON to this file")
	_ = verifyCmd.MarkFlagRequired("input")
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify charged fees against contract terms",
	Long: `Verify charged fees against contract terms.

Every transaction's commission, rolling reserve and penalty fees are
recomputed from the contract and compared with what was actually charged.
Without --contract the standard terms are used.

Examples:
  # Verify a statement against a negotiated contract
  feeaudit verify --input july.csv --contract contract.json

  # Track the reserve balance across the statement and keep the JSON
  feeaudit verify --input july.csv --cumulative-reserve --json result.json`,
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(verifyInput)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	rows, _, err := ingestion.Load(data, verifyInput)
	if err != nil {
		return err
	}

	terms := domain.DefaultContractTerms()
	if verifyContract != "" {
		contractData, err := os.ReadFile(verifyContract)
		if err != nil {
			return fmt.Errorf("read contract: %w", err)
		}
		terms, err = ingestion.LoadContract(contractData)
		if err != nil {
			return fmt.Errorf("contract: %w", err)
		}
	} else {
		fmt.Fprintln(os.Stderr, "no contract file given, verifying against standard terms")
	}

	opts := verify.Options{
		ConfidenceThreshold: verifyThreshold,
		CumulativeReserve:   verifyCumulative,
	}
	if verifyTolerance != "" {
		tol, err := decimal.NewFromString(verifyTolerance)
		if err != nil || tol.IsNegative() {
			return fmt.Errorf("invalid tolerance %q", verifyTolerance)
		}
		opts.Tolerance = tol
	}

	result, err := verify.NewService(cliLogger(), terms, opts).Run(cmd.Context(), rows)
	if err != nil {
		return err
	}

	fmt.Print(verify.RenderText(result, verify.TextReportMeta{
		ContractFile: verifyContract,
		InputFile:    verifyInput,
		SourceName:   ingestion.SourceName(verifyInput),
		GeneratedAt:  time.Now(),
	}))

	if verifyJSONOut != "" {
		return writeJSONFile(verifyJSONOut, result)
	}
	return nil
}
