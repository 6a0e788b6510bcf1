// Package recorder attaches to a target process and streams the access
// events it reports back over a local socket.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"symtrace/internal/event"
	"symtrace/internal/logger"
)

// EnvSocket is the environment variable the tracer shim reads to find the
// session socket. The recorder injects it when launching a target; in listen
// mode the operator exports it by hand.
const EnvSocket = "SYMTRACE_SOCKET"

// ErrSessionClosed reports use of a session that was already stopped.
var ErrSessionClosed = errors.New("session closed")

const (
	defaultEventBuffer = 1024
	defaultAcceptWait  = 10 * time.Second
	defaultStopGrace   = 5 * time.Second
)

// LaunchSpec describes the target process to trace.
//
// An empty Command selects listen mode: the recorder creates the socket and
// waits for an externally started target to connect.
type LaunchSpec struct {
	Command string
	Args    []string
	Dir     string   // Working directory (empty = inherit)
	Env     []string // Extra environment entries, KEY=VALUE

	// Stdout and Stderr receive the target's output. Nil means the target
	// inherits the recorder's own streams.
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the launch spec as a shell-like command line.
func (ls LaunchSpec) String() string {
	if ls.Command == "" {
		return "(listen)"
	}
	out := ls.Command
	for _, a := range ls.Args {
		out += " " + a
	}
	return out
}

// Options control session behavior.
type Options struct {
	SocketDir  string        // Directory for generated socket paths (default os.TempDir())
	SocketPath string        // Explicit socket path; wins over SocketDir
	Buffer     int           // Event channel capacity
	AcceptWait time.Duration // How long to wait for the target to connect
	StopGrace  time.Duration // SIGTERM-to-SIGKILL grace for launched targets
	Logger     *logger.Logger
}

// Session is one recording attachment to a target process.
//
// Lifecycle: New, Start, range over Events until the channel closes,
// then Stop. Stop is also safe to call concurrently to interrupt a
// session early; events already handed to the channel are kept.
type Session struct {
	id   string
	spec LaunchSpec
	opts Options
	log  *logger.Logger

	sockPath string
	conn     net.Conn
	cmd      *exec.Cmd

	events   chan event.AccessEvent
	quit     chan struct{}
	captured atomic.Int64

	g       *errgroup.Group
	stopped atomic.Bool

	exitCh  chan struct{}
	exitMu  sync.Mutex
	exitErr error

	stopOnce sync.Once
	stopErr  error
}

// New creates a session for the given target. The session does nothing
// until Start is called.
func New(spec LaunchSpec, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logger.NewDefault()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaultEventBuffer
	}
	if opts.AcceptWait <= 0 {
		opts.AcceptWait = defaultAcceptWait
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = defaultStopGrace
	}
	if opts.SocketDir == "" {
		opts.SocketDir = os.TempDir()
	}

	id := uuid.New().String()
	sockPath := opts.SocketPath
	if sockPath == "" {
		// Unix socket paths have a hard length cap, keep the name short.
		sockPath = filepath.Join(opts.SocketDir, "symtrace-"+id[:8]+".sock")
	}

	return &Session{
		id:       id,
		spec:     spec,
		opts:     opts,
		log:      opts.Logger.WithSession(id[:8]),
		sockPath: sockPath,
		events:   make(chan event.AccessEvent, opts.Buffer),
		quit:     make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// SocketPath returns the socket the target connects to.
func (s *Session) SocketPath() string { return s.sockPath }

// Captured returns the number of events handed to the Events channel so far.
func (s *Session) Captured() int64 { return s.captured.Load() }

// Events returns the stream of access events. The channel closes when the
// target disconnects, the stream errors, or Stop interrupts the session.
// Events admitted before an interrupt stay buffered for the consumer.
func (s *Session) Events() <-chan event.AccessEvent { return s.events }

// Start creates the session socket, launches the target (unless in listen
// mode), and blocks until the target connects or the accept window expires.
// On return the event stream is live.
func (s *Session) Start(ctx context.Context) error {
	if s.stopped.Load() {
		return ErrSessionClosed
	}

	ln, err := net.Listen("unix", s.sockPath)
	if err != nil {
		return fmt.Errorf("failed to create session socket: %w", err)
	}

	if s.spec.Command != "" {
		if err := s.launchTarget(); err != nil {
			_ = ln.Close()
			return err
		}
		s.log.Infow("Target launched",
			"pid", s.cmd.Process.Pid,
			"command", s.spec.String(),
			"socket", s.sockPath,
		)
	} else {
		s.log.Infow("Waiting for target to connect",
			"socket", s.sockPath,
			"env", EnvSocket+"="+s.sockPath,
		)
	}

	conn, err := s.acceptTarget(ctx, ln)
	// The listener is single-use either way. Closing it unlinks the
	// socket file.
	_ = ln.Close()
	if err != nil {
		s.reapTarget()
		return err
	}
	s.conn = conn

	s.log.Infow("Target attached", "socket", s.sockPath)

	s.g = &errgroup.Group{}
	s.g.Go(s.pump)

	return nil
}

// launchTarget starts the target process with the session socket injected
// into its environment.
func (s *Session) launchTarget() error {
	cmd := exec.Command(s.spec.Command, s.spec.Args...)
	cmd.Dir = s.spec.Dir
	cmd.Env = append(os.Environ(), s.spec.Env...)
	cmd.Env = append(cmd.Env, EnvSocket+"="+s.sockPath)

	cmd.Stdout = s.spec.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = s.spec.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to launch target: %w", err)
	}

	s.cmd = cmd
	s.exitCh = make(chan struct{})
	go func() {
		err := cmd.Wait()
		s.exitMu.Lock()
		s.exitErr = err
		s.exitMu.Unlock()
		close(s.exitCh)
	}()

	return nil
}

// acceptTarget waits for the single target connection, giving up when the
// accept window expires, the target exits first, or ctx is cancelled.
func (s *Session) acceptTarget(ctx context.Context, ln net.Listener) (net.Conn, error) {
	if ul, ok := ln.(*net.UnixListener); ok {
		_ = ul.SetDeadline(time.Now().Add(s.opts.AcceptWait))
	}

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	acceptCh := make(chan acceptResult, 1)
	go func() {
		conn, err := ln.Accept()
		acceptCh <- acceptResult{conn, err}
	}()

	select {
	case res := <-acceptCh:
		if res.err != nil {
			var ne net.Error
			if errors.As(res.err, &ne) && ne.Timeout() {
				return nil, fmt.Errorf("target did not connect within %s", s.opts.AcceptWait)
			}
			return nil, fmt.Errorf("failed to accept target connection: %w", res.err)
		}
		return res.conn, nil

	case <-s.exitCh: // nil in listen mode, never fires
		if err := s.targetExit(); err != nil {
			return nil, fmt.Errorf("target exited before attaching: %w", err)
		}
		return nil, fmt.Errorf("target exited before attaching")

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pump decodes events off the connection and hands them to the channel.
// It owns the channel close.
func (s *Session) pump() error {
	defer close(s.events)

	dec := event.NewDecoder(s.conn)
	warned := false
	for {
		ev, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if s.stopped.Load() {
				// Stop closed the connection under the decoder.
				return nil
			}
			return err
		}

		if !warned && len(s.events)*10 >= cap(s.events)*9 {
			warned = true
			s.log.Warnw("Event buffer nearly full, consumer is falling behind",
				"buffered", len(s.events),
				"capacity", cap(s.events))
		}

		// A Stop with a full channel and no consumer must not wedge the
		// pump; an unadmitted event is not counted.
		select {
		case s.events <- ev:
			s.captured.Add(1)
		case <-s.quit:
			return nil
		}
	}
}

// Stop interrupts and reaps the session. It severs the event stream first
// so no further events are admitted, then gives a launched target StopGrace
// to exit after SIGTERM before killing it.
//
// Stop is idempotent; every call returns the result of the first.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() { s.stopErr = s.stop() })
	return s.stopErr
}

func (s *Session) stop() error {
	s.stopped.Store(true)
	close(s.quit)

	if s.conn != nil {
		_ = s.conn.Close()
	}

	s.reapTarget()

	var pumpErr error
	if s.g != nil {
		pumpErr = s.g.Wait()
	}

	// net.Listen unlinks on close; this covers crash leftovers at the
	// same path.
	_ = os.Remove(s.sockPath)

	s.log.Infow("Session stopped",
		"events_captured", s.captured.Load(),
	)

	return pumpErr
}

// reapTarget terminates a launched target and waits for it. SIGTERM first,
// SIGKILL after the grace period.
func (s *Session) reapTarget() {
	if s.cmd == nil {
		return
	}

	select {
	case <-s.exitCh:
		return // already gone
	default:
	}

	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Racing a self-exiting target is normal here.
		s.log.Debugf("SIGTERM delivery: %v", err)
	}

	select {
	case <-s.exitCh:
	case <-time.After(s.opts.StopGrace):
		s.log.Warnw("Target ignored SIGTERM, killing",
			"pid", s.cmd.Process.Pid,
			"grace", s.opts.StopGrace,
		)
		_ = s.cmd.Process.Kill()
		<-s.exitCh
	}
}

// TargetExit reports how a launched target exited. It returns nil for a
// clean exit, the exec error otherwise, and nil when nothing was launched
// or the target is still running.
func (s *Session) TargetExit() error {
	if s.exitCh == nil {
		return nil
	}
	select {
	case <-s.exitCh:
		return s.targetExit()
	default:
		return nil
	}
}

func (s *Session) targetExit() error {
	s.exitMu.Lock()
	defer s.exitMu.Unlock()
	return s.exitErr
}
