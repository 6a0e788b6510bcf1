package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"symtrace/internal/descriptor"
	"symtrace/internal/emit"
)

var mergeOutput string

var mergeCmd = &cobra.Command{
	Use:   "merge <document>...",
	Short: "Merge descriptor documents into one",
	Long: `Merge folds descriptor documents into a single document holding the
union of their symbols and members. Merging is pure: inputs are never
modified, identical members fold together, and the result is canonical
regardless of argument order.

Example:
  symtrace merge run1.json run2.json -o combined.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "",
		"Descriptor document to write (required)")
	mergeCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cmd.Printf("Merging %d document(s):\n", len(args))

	sets := make([]*descriptor.Set, 0, len(args))
	for _, path := range args {
		set, err := emit.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		cmd.Printf("  %s: %d symbols, %d members\n", path, set.Len(), set.MemberCount())
		sets = append(sets, set)
	}

	merged := descriptor.MergeAll(sets...)

	if err := emit.WriteFile(merged, mergeOutput, emit.WriteOptions{Verify: cfg.Output.Verify}); err != nil {
		return fmt.Errorf("failed to write %s: %w", mergeOutput, err)
	}

	cmd.Printf("\n=== Merge Complete ===\n")
	cmd.Printf("Symbols: %d\n", merged.Len())
	cmd.Printf("Members: %d\n", merged.MemberCount())
	cmd.Printf("Output: %s\n", mergeOutput)

	return nil
}
