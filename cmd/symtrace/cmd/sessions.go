package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"symtrace/internal/journal"
	"symtrace/internal/logger"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded collection sessions",
	Long: `Sessions lists the recording history kept in the local session
journal, most recent first.

Example:
  symtrace sessions --limit 10`,
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20,
		"Maximum sessions to list")

	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Journal.Enabled {
		return fmt.Errorf("session journal is disabled in configuration")
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	jnlPath, err := cfg.JournalPath()
	if err != nil {
		return fmt.Errorf("failed to resolve journal path: %w", err)
	}

	ctx := context.Background()
	jnl, err := journal.Open(ctx, jnlPath, log)
	if err != nil {
		return fmt.Errorf("failed to open session journal: %w", err)
	}
	defer jnl.Close()

	sessions, err := jnl.Recent(ctx, sessionsLimit)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		cmd.Printf("No sessions recorded in %s\n", jnlPath)
		return nil
	}

	cmd.Printf("Sessions in %s:\n\n", jnlPath)

	for i, s := range sessions {
		cmd.Printf("%d. %s [%s]\n", i+1, s.ID, s.Status)
		cmd.Printf("   Target:   %s\n", s.Target)
		cmd.Printf("   Output:   %s\n", s.OutputPath)
		cmd.Printf("   Events:   %d\n", s.EventsCaptured)
		cmd.Printf("   Symbols:  %d\n", s.SymbolsEmitted)
		cmd.Printf("   Started:  %s\n", s.StartedAt.Local().Format(time.RFC3339))
		if s.FinishedAt != nil {
			cmd.Printf("   Finished: %s (%s)\n",
				s.FinishedAt.Local().Format(time.RFC3339),
				s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
		}
		if s.ErrorMessage != "" {
			cmd.Printf("   Error:    %s\n", s.ErrorMessage)
		}

		if i < len(sessions)-1 {
			cmd.Println()
		}
	}

	running, completed, failed, err := jnl.Counts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count sessions: %w", err)
	}
	cmd.Printf("\nTotal: %d running, %d completed, %d failed\n", running, completed, failed)

	return nil
}
