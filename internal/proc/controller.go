package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/tetherproc/tether/internal/affinity"
	"github.com/tetherproc/tether/internal/iolog"
	"go.uber.org/zap"
)

// Controller owns a single child process and its stdio pipes. It is
// created idle; Start spawns the child, Kill tears it down. All methods
// are safe for use from a single driving goroutine; the registry is the
// only state shared across controllers.
type Controller struct {
	config Config

	mu          sync.Mutex
	initialized bool
	pid         int
	stdin       io.WriteCloser
	stdout      io.ReadCloser
	done        chan struct{}
	exitErr     error
	reader      *lineReader

	registry *Registry
	iolog    iolog.Log
	log      *zap.Logger
}

type Params struct {
	// Registry is the process-wide set of live child pids. Required.
	Registry *Registry

	// IOLog receives every line exchanged with the child.
	IOLog iolog.Log

	// Log is the logger to use for the controller
	Log *zap.Logger
}

func New(config Config, params Params) *Controller {
	log := params.Log
	if log == nil {
		log = zap.NewNop()
	}

	iol := params.IOLog
	if iol == nil {
		iol = iolog.Nop()
	}

	return &Controller{
		config:   config,
		registry: params.Registry,
		iolog:    iol,
		log:      log.Named("proc"),
	}
}

// Start spawns the configured command with fresh stdin/stdout pipes,
// placed in its own process group so interrupts sent to the parent do
// not reach the child. On success the child is registered with the
// registry and the controller becomes usable for I/O.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return ErrAlreadyStarted
	}

	// exit early if the context is already cancelled
	if ctx.Err() != nil {
		return fmt.Errorf("failed to start process: %w", ctx.Err())
	}

	c.log.With(
		zap.String("command", c.config.Cmd),
		zap.Strings("args", c.config.Args),
		zap.String("cwd", c.config.Cwd),
	).Debug("starting child process")

	cmd := exec.Command(c.config.Cmd, c.config.Args...)

	if c.config.Env != nil {
		env := make([]string, 0, len(c.config.Env))
		for k, v := range c.config.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}

	if c.config.Cwd != "" {
		cmd.Dir = c.config.Cwd
	}

	// pipes are owned by the controller, not by exec.Cmd: Wait must
	// not close the read end while the line reader still drains it
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW

	// detach the child from the parent's signal group
	initCmd(cmd)

	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		return fmt.Errorf("failed to start process: %w", err)
	}

	// the child holds its own copies of these ends; closing ours
	// makes the reader observe EOF as soon as the child exits
	stdinR.Close()
	stdoutW.Close()

	c.pid = cmd.Process.Pid
	c.stdin = stdinW
	c.stdout = stdoutR
	c.done = make(chan struct{})
	c.exitErr = nil
	c.reader = newLineReader(stdoutR, c.config.LogName, c.iolog, c.log)
	c.initialized = true

	c.registry.Add(c.pid)

	log := c.log.With(zap.Int("pid", c.pid))
	log.Debug("child process started")

	done := c.done
	go func() {
		// block until the process exits; the exit error is
		// published before done is closed, so any observer of
		// done sees a consistent exitErr
		c.exitErr = cmd.Wait()
		close(done)
	}()

	go c.reader.run()

	return nil
}

// Alive reports whether the child has not yet exited. Calling it on a
// controller that was never started, or after Kill, is a programming
// error.
func (c *Controller) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		panic("proc: Alive called on uninitialized controller")
	}

	return c.aliveLocked()
}

func (c *Controller) aliveLocked() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// SetAffinity binds the child to the given logical CPUs. An empty set
// is a no-op.
func (c *Controller) SetAffinity(cpus []int) error {
	if len(cpus) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return ErrNotStarted
	}

	if err := affinity.Bind(c.pid, cpus); err != nil {
		return fmt.Errorf("failed to set affinity: %w", err)
	}

	c.log.Debug("affinity set", zap.Int("pid", c.pid), zap.Ints("cpus", cpus))

	return nil
}

// Kill tears the child down. It is idempotent and never fails: every
// error on the way out is logged and swallowed, so it is safe to call
// from deferred cleanup paths. The registry entry is removed first so
// a half-constructed controller cannot leak one.
func (c *Controller) Kill() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.killLocked()
}

func (c *Controller) killLocked() {
	c.registry.Remove(c.pid)

	if !c.initialized {
		return
	}

	log := c.log.With(zap.Int("pid", c.pid))

	if c.aliveLocked() {
		log.Debug("killing child process")

		if err := killProcess(c.pid); err != nil {
			log.Warn("kill failed", zap.Error(err))
		}

		// wait for the child to be reaped so the pid cannot be
		// reused while still in flight
		select {
		case <-c.done:
		case <-time.After(killWait):
			log.Warn("child not reaped", zap.Error(ErrKillTimeout))
		}
	}

	c.reader.stop()

	// closing the read end also ends a reader blocked in a read
	if err := c.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		log.Warn("close stdin failed", zap.Error(err))
	}
	if err := c.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		log.Warn("close stdout failed", zap.Error(err))
	}

	c.initialized = false
}

// Restart kills the current child, if any, and spawns a fresh one with
// the same command, arguments and log name.
func (c *Controller) Restart(ctx context.Context) error {
	c.Kill()
	return c.Start(ctx)
}

// Write sends text verbatim to the child's stdin. If the child has
// already exited, the controller is cleaned up and the write fails
// explicitly instead of being issued against a dead endpoint.
func (c *Controller) Write(text string) error {
	c.mu.Lock()

	if !c.initialized {
		c.mu.Unlock()
		return ErrNotStarted
	}

	c.iolog.Outgoing(text, c.config.LogName)

	if !c.aliveLocked() {
		c.killLocked()
		c.mu.Unlock()
		return fmt.Errorf("%w: write %q", ErrNotAlive, strings.TrimRight(text, "\r\n"))
	}

	stdin := c.stdin
	c.mu.Unlock()

	n, err := io.WriteString(stdin, text)
	if err != nil {
		return fmt.Errorf("failed to write to stdin: %w", err)
	}
	if n != len(text) {
		return io.ErrShortWrite
	}

	return nil
}

// ReadUntil collects lines from the child's stdout until one of them
// starts with prefix. The returned slice is rebuilt on every call and
// holds lines in arrival order; on StatusOK the matching line is its
// last element. A timeout of zero waits indefinitely. On
// StatusTimeout the collected lines are returned but are partial;
// unconsumed output stays buffered for the next call.
func (c *Controller) ReadUntil(prefix string, timeout time.Duration) ([]string, Status, error) {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return nil, StatusErr, ErrNotStarted
	}
	reader := c.reader
	c.mu.Unlock()

	lines := make([]string, 0, 16)

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case line, ok := <-reader.Lines():
			if !ok {
				return lines, StatusErr, fmt.Errorf("failed to read from stdout: %w", reader.Err())
			}

			lines = append(lines, line)

			if strings.HasPrefix(line, prefix) {
				return lines, StatusOK, nil
			}
		case <-deadline:
			return lines, StatusTimeout, nil
		}
	}
}

// Wait blocks until the child exits and returns its wait error, or the
// context error if the context is done first.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return ErrNotStarted
	}
	done := c.done
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	return c.exitErr
}

func (c *Controller) Pid() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pid
}

// LogName returns the identity under which the child's I/O is logged.
func (c *Controller) LogName() string {
	return c.config.LogName
}
