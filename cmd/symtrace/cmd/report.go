package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"symtrace/internal/emit"
	"symtrace/internal/report"
)

var reportLimit int

var reportCmd = &cobra.Command{
	Use:   "report <document>",
	Short: "Render a summary of a descriptor document",
	Long: `Report renders a human-readable summary of a descriptor document:
totals plus the member signatures recorded per symbol.

Example:
  symtrace report symbols.json --limit 25`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().IntVar(&reportLimit, "limit", 0,
		"Maximum symbols to render (0 shows all)")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	set, err := emit.Load(args[0])
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", args[0], err)
	}

	rcfg := cfg.Report
	if reportLimit > 0 {
		rcfg.Limit = reportLimit
	}

	report.NewPrinter(cmd.OutOrStdout(), rcfg).Summary(set)
	return nil
}
