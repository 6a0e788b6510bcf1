package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"symtrace/internal/emit"
	"symtrace/internal/report"
)

var diffCmd = &cobra.Command{
	Use:   "diff <old> <new>",
	Short: "Show the difference between two descriptor documents",
	Long: `Diff compares two descriptor documents and lists the symbols and
members present in one but not the other.

Example:
  symtrace diff symbols-v1.json symbols-v2.json`,
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	before, err := emit.Load(args[0])
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", args[0], err)
	}
	after, err := emit.Load(args[1])
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", args[1], err)
	}

	d := report.ComputeDiff(before, after)
	report.NewPrinter(cmd.OutOrStdout(), cfg.Report).Diff(d)
	return nil
}
