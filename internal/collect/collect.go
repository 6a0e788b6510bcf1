// Package collect drives a recording session end to end: attach to the
// target, record its access events, normalize them into a descriptor set,
// merge with an existing document, and emit the result.
package collect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"symtrace/internal/descriptor"
	"symtrace/internal/emit"
	"symtrace/internal/event"
	"symtrace/internal/journal"
	"symtrace/internal/logger"
	"symtrace/internal/recorder"
)

// Stage names the pipeline phase a failure belongs to.
type Stage string

const (
	StageAttach    Stage = "attach"
	StageRecord    Stage = "record"
	StageNormalize Stage = "normalize"
	StageMerge     Stage = "merge"
	StageEmit      Stage = "emit"
)

// StageError wraps a failure with the pipeline stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Options configure one collection run.
type Options struct {
	Launch      recorder.LaunchSpec
	Recorder    recorder.Options
	Output      string // descriptor document path (required)
	MergeWith   string // existing document folded into the result, optional
	CapturePath string // raw event capture, optional, .gz compresses
	Verify      bool   // re-parse the emitted document before rename

	Journal *journal.Journal // session history, nil disables
	Logger  *logger.Logger
}

// Result carries the statistics of a finished run.
type Result struct {
	SessionID      string
	StartedAt      time.Time
	CompletedAt    time.Time
	Duration       time.Duration
	EventsCaptured int64
	Duplicates     int64
	Symbols        int
	Members        int
	SymbolsAdded   int // symbols beyond the merge base, set when merging
	MembersAdded   int // members beyond the merge base, set when merging
	OutputPath     string
	MergedWith     string
	CapturePath    string
	Interrupted    bool // context cancelled mid-recording
	Warnings       []string
}

// Collector runs the record-to-emit pipeline. A Collector is single-use;
// create one per session.
type Collector struct {
	opts    Options
	journal *journal.Journal
	log     *logger.Logger
}

// New creates a collector. Output is the only required option.
func New(opts Options) (*Collector, error) {
	if opts.Output == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewDefault()
	}

	return &Collector{
		opts:    opts,
		journal: opts.Journal,
		log:     opts.Logger,
	}, nil
}

// Run executes the pipeline. Cancelling ctx stops the recording gracefully:
// events admitted before the cancel still normalize and emit, and the
// result reports Interrupted.
//
// Failures carry the stage they happened in; no partial document is ever
// left at the output path.
func (c *Collector) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		StartedAt:  time.Now(),
		OutputPath: c.opts.Output,
		MergedWith: c.opts.MergeWith,
	}

	// Surface doomed runs before anything is launched.
	base, err := preflight(c.opts.Output, c.opts.MergeWith)
	if err != nil {
		return nil, err
	}

	var capture *event.CaptureWriter
	if c.opts.CapturePath != "" {
		capture, err = event.NewCaptureWriter(c.opts.CapturePath)
		if err != nil {
			return nil, &StageError{Stage: StageRecord, Err: fmt.Errorf("event capture: %w", err)}
		}
	}

	rec := c.opts.Recorder
	if rec.Logger == nil {
		rec.Logger = c.log
	}
	sess := recorder.New(c.opts.Launch, rec)
	res.SessionID = sess.ID()
	log := c.log.WithSession(sess.ID()[:8])

	c.journalBegin(ctx, res)

	log.Infow("Starting collection",
		"target", c.opts.Launch.String(),
		"output", c.opts.Output,
		"merge_with", c.opts.MergeWith,
	)

	if err := sess.Start(ctx); err != nil {
		if capture != nil {
			_ = capture.Close()
		}
		return c.fail(ctx, res, StageAttach, err)
	}

	// A cancelled context interrupts the session; events already admitted
	// still drain below and make it into the document.
	unregister := context.AfterFunc(ctx, func() { _ = sess.Stop() })
	defer unregister()

	norm := descriptor.NewNormalizer()
	for ev := range sess.Events() {
		if capture != nil {
			if werr := capture.Write(ev); werr != nil {
				c.warn(res, log, fmt.Sprintf("event capture failed, disabling: %v", werr))
				_ = capture.Close()
				capture = nil
			}
		}
		if oerr := norm.Observe(ev); oerr != nil {
			res.EventsCaptured = sess.Captured()
			_ = sess.Stop()
			return c.fail(ctx, res, StageNormalize, oerr)
		}
	}

	stopErr := sess.Stop()
	res.EventsCaptured = sess.Captured()
	res.Interrupted = ctx.Err() != nil

	if stopErr != nil {
		return c.fail(ctx, res, StageRecord, stopErr)
	}

	if exitErr := sess.TargetExit(); exitErr != nil {
		c.warn(res, log, fmt.Sprintf("target exited abnormally: %v", exitErr))
	}
	if res.EventsCaptured == 0 {
		c.warn(res, log, "no events captured; descriptor may be incomplete")
	}
	if capture != nil {
		if cerr := capture.Close(); cerr != nil {
			c.warn(res, log, fmt.Sprintf("closing event capture: %v", cerr))
		} else {
			res.CapturePath = capture.Path()
		}
	}

	set := norm.Snapshot()
	stats := norm.Stats()
	res.Duplicates = stats.Duplicates

	final := set
	if base != nil {
		final = descriptor.Merge(base, set)
		res.SymbolsAdded = final.Len() - base.Len()
		res.MembersAdded = final.MemberCount() - base.MemberCount()
	}
	res.Symbols = final.Len()
	res.Members = final.MemberCount()

	if err := emit.WriteFile(final, c.opts.Output, emit.WriteOptions{Verify: c.opts.Verify}); err != nil {
		return c.fail(ctx, res, StageEmit, err)
	}

	res.CompletedAt = time.Now()
	res.Duration = res.CompletedAt.Sub(res.StartedAt)

	c.journalFinish(ctx, res, journal.StatusCompleted, "")

	log.Infow("Collection completed",
		"events", res.EventsCaptured,
		"duplicates", res.Duplicates,
		"symbols", res.Symbols,
		"members", res.Members,
		"duration", res.Duration,
		"interrupted", res.Interrupted,
		"output", res.OutputPath,
	)

	return res, nil
}

// preflight verifies the output directory is writable and the merge input
// parses. It returns the loaded merge set so the document is read once.
func preflight(output, mergeWith string) (*descriptor.Set, error) {
	dir := filepath.Dir(output)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &StageError{Stage: StageEmit, Err: fmt.Errorf("output directory: %w", err)}
		}
	}
	probe, err := os.CreateTemp(dir, ".symtrace-probe-*")
	if err != nil {
		return nil, &StageError{Stage: StageEmit, Err: fmt.Errorf("output directory not writable: %w", err)}
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())

	if mergeWith == "" {
		return nil, nil
	}
	base, err := emit.Load(mergeWith)
	if err != nil {
		return nil, &StageError{Stage: StageMerge, Err: err}
	}
	return base, nil
}

func (c *Collector) fail(ctx context.Context, res *Result, stage Stage, err error) (*Result, error) {
	serr := &StageError{Stage: stage, Err: err}
	c.journalFinish(ctx, res, journal.StatusFailed, serr.Error())
	return nil, serr
}

func (c *Collector) warn(res *Result, log *logger.Logger, msg string) {
	res.Warnings = append(res.Warnings, msg)
	log.Warn(msg)
}

// journalBegin records the session start. Journal trouble never aborts a
// run; it downgrades to a warning and the journal is dropped for the rest
// of the session.
func (c *Collector) journalBegin(ctx context.Context, res *Result) {
	if c.journal == nil {
		return
	}
	err := c.journal.Begin(ctx, journal.SessionRecord{
		ID:         res.SessionID,
		Target:     c.opts.Launch.String(),
		OutputPath: c.opts.Output,
		StartedAt:  res.StartedAt,
	})
	if err != nil {
		c.log.Warnw("Session journal unavailable", "error", err)
		c.journal = nil
	}
}

func (c *Collector) journalFinish(ctx context.Context, res *Result, status journal.SessionStatus, msg string) {
	if c.journal == nil {
		return
	}
	finished := time.Now()
	// The run may be ending because ctx was cancelled; the journal write
	// still has to go through.
	err := c.journal.Finish(context.WithoutCancel(ctx), journal.SessionRecord{
		ID:             res.SessionID,
		Status:         status,
		EventsCaptured: res.EventsCaptured,
		SymbolsEmitted: res.Symbols,
		ErrorMessage:   msg,
		FinishedAt:     &finished,
	})
	if err != nil {
		c.log.Warnw("Failed to journal session result", "error", err)
	}
}
