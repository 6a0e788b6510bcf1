package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"symtrace/internal/collect"
	"symtrace/internal/journal"
	"symtrace/internal/lock"
	"symtrace/internal/logger"
	"symtrace/internal/recorder"
)

var (
	recordOutput  string
	recordMerge   string
	recordCapture string
	recordSocket  string
	recordListen  bool
	recordForce   bool
)

var recordCmd = &cobra.Command{
	Use:   "record [flags] -- <command> [args...]",
	Short: "Record a target's symbol accesses into a descriptor document",
	Long: `Record launches the target process (or waits for one with --listen),
streams its symbol access events over a local socket, and distills them
into a canonical descriptor document.

The recording process follows these steps:
  1. Preflight the output path and any merge input
  2. Attach: launch the target and wait for it to connect
  3. Record the event stream until the target exits (or Ctrl-C)
  4. Normalize events into a deduplicated descriptor set
  5. Merge with an existing document when --merge is given
  6. Emit the canonical document atomically

Example:
  symtrace record -o symbols.json -- java -jar app.jar
  symtrace record -o symbols.json --merge symbols.json --listen`,
	Args: cobra.ArbitraryArgs,
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "",
		"Descriptor document to write (required)")
	recordCmd.MarkFlagRequired("output")

	recordCmd.Flags().StringVar(&recordMerge, "merge", "",
		"Existing descriptor document to fold into the result")
	recordCmd.Flags().StringVar(&recordCapture, "capture", "",
		"Write the raw event stream to this NDJSON file (.gz compresses)")
	recordCmd.Flags().StringVar(&recordSocket, "socket", "",
		"Listen on this socket path instead of a generated one")
	recordCmd.Flags().BoolVar(&recordListen, "listen", false,
		"Do not launch a target; wait for one to connect")
	recordCmd.Flags().BoolVar(&noJournal, "no-journal", false,
		"Do not record this session in the journal")
	recordCmd.Flags().BoolVar(&recordForce, "force", false,
		"Force execution even if the output lock cannot be acquired (use with caution)")

	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	if recordListen && len(args) > 0 {
		return fmt.Errorf("--listen cannot be combined with a target command")
	}
	if !recordListen && len(args) == 0 {
		return fmt.Errorf("target command required after -- (or use --listen)")
	}

	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	output := recordOutput
	if output == "" {
		output = cfg.Output.Path
	}
	if output == "" {
		return fmt.Errorf("output path required (use --output or set output.path)")
	}

	// Initialize logger
	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Infow("Starting recording session",
		"output", output,
		"config", GetConfigFile(),
	)

	var spec recorder.LaunchSpec
	if len(args) > 0 {
		spec = recorder.LaunchSpec{Command: args[0], Args: args[1:]}
	}

	// Acquire the advisory lock to prevent concurrent runs on one output
	if !recordForce {
		outLock := lock.ForOutput(output)
		if err := outLock.AcquireOrFail(); err != nil {
			if errors.Is(err, lock.ErrLockHeld) {
				return fmt.Errorf("another collector is writing '%s' (use --force to override): %w", output, err)
			}
			return fmt.Errorf("failed to acquire output lock: %w", err)
		}
		defer outLock.Release()
		log.Infow("Acquired output lock", "lock", outLock.Path())
	} else {
		log.Warnw("Skipping output lock acquisition (--force flag used)", "output", output)
	}

	// Setup context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var jnl *journal.Journal
	if cfg.Journal.Enabled {
		jnlPath, jerr := cfg.JournalPath()
		if jerr == nil {
			jnl, jerr = journal.Open(ctx, jnlPath, log)
		}
		if jerr != nil {
			log.Warnw("Session journal unavailable", "error", jerr)
			jnl = nil
		} else {
			defer jnl.Close()
		}
	}

	capturePath := recordCapture
	if capturePath == "" {
		capturePath = cfg.Capture.Path
	}

	// Create collector
	col, err := collect.New(collect.Options{
		Launch: spec,
		Recorder: recorder.Options{
			SocketDir:  cfg.Recorder.SocketDir,
			SocketPath: recordSocket,
			Buffer:     cfg.Recorder.EventBuffer,
			AcceptWait: cfg.Recorder.AcceptWait(),
			StopGrace:  cfg.Recorder.StopGrace(),
			Logger:     log,
		},
		Output:      output,
		MergeWith:   recordMerge,
		CapturePath: capturePath,
		Verify:      cfg.Output.Verify,
		Journal:     jnl,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("failed to create collector: %w", err)
	}

	// Handle graceful shutdown; a second signal skips finalization
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Warn("Received shutdown signal - finalizing descriptor...")
		cancel()
		<-sigChan
		log.Error("Second shutdown signal - exiting without finalizing")
		os.Exit(130)
	}()

	// Run the pipeline
	result, err := col.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Recording cancelled before any events were captured")
			return nil
		}
		return fmt.Errorf("recording failed: %w", err)
	}

	// Display results
	fmt.Printf("\n=== Recording Complete ===\n")
	fmt.Printf("Session: %s\n", result.SessionID)
	fmt.Printf("Duration: %s\n", result.Duration)
	fmt.Printf("Events Captured: %d\n", result.EventsCaptured)
	fmt.Printf("Duplicates Folded: %d\n", result.Duplicates)
	fmt.Printf("Symbols: %d\n", result.Symbols)
	fmt.Printf("Members: %d\n", result.Members)
	if result.MergedWith != "" {
		fmt.Printf("Merged With: %s\n", result.MergedWith)
		fmt.Printf("New This Run: %d symbols, %d members\n", result.SymbolsAdded, result.MembersAdded)
	}
	if result.CapturePath != "" {
		fmt.Printf("Capture: %s\n", result.CapturePath)
	}
	fmt.Printf("Output: %s\n", result.OutputPath)
	if result.Interrupted {
		fmt.Printf("Interrupted: document holds the events admitted before the cancel\n")
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, w := range result.Warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	return nil
}
