package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"symtrace/internal/collect"
	"symtrace/internal/logger"
)

var (
	replayOutput string
	replayMerge  string
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture>...",
	Short: "Rebuild a descriptor document from raw event captures",
	Long: `Replay re-runs the normalize, merge, and emit stages over raw event
captures written by 'record --capture', without re-observing a live
target. Replaying a capture reproduces the live run's document exactly.

Example:
  symtrace replay events.ndjson.gz -o symbols.json
  symtrace replay run1.ndjson run2.ndjson -o symbols.json --merge base.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVarP(&replayOutput, "output", "o", "",
		"Descriptor document to write (required)")
	replayCmd.MarkFlagRequired("output")

	replayCmd.Flags().StringVar(&replayMerge, "merge", "",
		"Existing descriptor document to fold into the result")

	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	result, err := collect.Replay(collect.ReplayOptions{
		Captures:  args,
		Output:    replayOutput,
		MergeWith: replayMerge,
		Verify:    cfg.Output.Verify,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	cmd.Printf("\n=== Replay Complete ===\n")
	cmd.Printf("Captures: %d\n", len(args))
	cmd.Printf("Events Replayed: %d\n", result.EventsCaptured)
	cmd.Printf("Duplicates Folded: %d\n", result.Duplicates)
	cmd.Printf("Symbols: %d\n", result.Symbols)
	cmd.Printf("Members: %d\n", result.Members)
	if result.MergedWith != "" {
		cmd.Printf("Merged With: %s\n", result.MergedWith)
		cmd.Printf("New This Run: %d symbols, %d members\n", result.SymbolsAdded, result.MembersAdded)
	}
	cmd.Printf("Output: %s\n", result.OutputPath)

	if len(result.Warnings) > 0 {
		cmd.Printf("\nWarnings:\n")
		for _, w := range result.Warnings {
			cmd.Printf("  - %s\n", w)
		}
	}

	return nil
}
