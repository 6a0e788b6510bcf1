package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"symtrace/internal/emit"
)

var validateCmd = &cobra.Command{
	Use:   "validate <document>...",
	Short: "Validate descriptor documents",
	Long: `Validate parses each document and checks it against the descriptor
schema: version, canonical symbol ordering, member identity rules.
Nothing is written.

Example:
  symtrace validate symbols.json older/*.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	failures := 0
	for _, path := range args {
		set, err := emit.Load(path)
		if err != nil {
			cmd.Printf("❌ %s: %v\n", path, err)
			failures++
			continue
		}
		cmd.Printf("✅ %s: %d symbols, %d members\n", path, set.Len(), set.MemberCount())
	}

	if failures > 0 {
		return fmt.Errorf("validation failed for %d of %d document(s)", failures, len(args))
	}

	cmd.Printf("\nAll %d document(s) are valid\n", len(args))
	return nil
}
