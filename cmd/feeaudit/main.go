// Package main implements the feeaudit CLI for offline statement analysis.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pastrop/feeaudit/internal/logger"
)

var logLevel string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "feeaudit",
	Short: "Audit acquirer fees in transaction statements",
	Long: `feeaudit analyzes payment transaction statements offline.

It discovers the commission rate structure hidden in a statement, verifies
charged fees against contract terms and prints readable reports, without
needing the HTTP service or a database.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
}

// cliLogger sends log lines to stderr so reports on stdout stay clean.
func cliLogger() zerolog.Logger {
	l, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		l = zerolog.WarnLevel
	}
	return logger.NewWithWriter(os.Stderr).Level(l)
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "JSON report written to %s\n", path)
	return nil
}
