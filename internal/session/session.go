// Package session drives one child process end to end for the run
// command: spawn, optional CPU pinning, scripted writes, reads bounded
// by the terminator prefix and timeout, and guaranteed teardown.
package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tetherproc/tether/internal/iolog"
	"github.com/tetherproc/tether/internal/proc"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	// Terminator is the prefix that marks the final line of a
	// response. Empty means no read phase: the session waits for
	// the child to exit instead.
	Terminator string `conf:"terminator"`

	// Timeout bounds each read phase. Zero waits indefinitely.
	Timeout time.Duration `conf:"timeout"`

	// Send holds the lines written to the child, in order.
	Send []string `conf:"send"`

	// Cpus pins the child to the given logical CPUs. Empty leaves
	// scheduling to the OS.
	Cpus []int `conf:"cpus"`
}

type Session struct {
	config Config

	ctl *proc.Controller

	out io.Writer
	log *zap.Logger
}

type Params struct {
	fx.In

	Config     Config
	ProcConfig proc.Config
	Registry   *proc.Registry
	IOLog      iolog.Log
	Log        *zap.Logger
}

func New(params Params) *Session {
	ctl := proc.New(params.ProcConfig, proc.Params{
		Registry: params.Registry,
		IOLog:    params.IOLog,
		Log:      params.Log,
	})

	return &Session{
		config: params.Config,
		ctl:    ctl,
		out:    os.Stdout,
		log:    params.Log.Named("session"),
	}
}

// Run executes the session. The child is killed on every exit path.
func (s *Session) Run(ctx context.Context) error {
	if err := s.ctl.Start(ctx); err != nil {
		return err
	}

	defer s.Close()

	if err := s.ctl.SetAffinity(s.config.Cpus); err != nil {
		return err
	}

	for _, line := range s.config.Send {
		if err := s.ctl.Write(line + "\n"); err != nil {
			return err
		}

		if s.config.Terminator == "" {
			continue
		}

		if err := s.readResponse(); err != nil {
			return err
		}
	}

	if len(s.config.Send) == 0 && s.config.Terminator != "" {
		return s.readResponse()
	}

	if s.config.Terminator == "" {
		return s.waitForExit(ctx)
	}

	return nil
}

func (s *Session) readResponse() error {
	lines, status, err := s.ctl.ReadUntil(s.config.Terminator, s.config.Timeout)

	for _, line := range lines {
		fmt.Fprintln(s.out, line)
	}

	switch status {
	case proc.StatusOK:
		return nil
	case proc.StatusTimeout:
		return fmt.Errorf("no %q within %s", s.config.Terminator, s.config.Timeout)
	default:
		return err
	}
}

func (s *Session) waitForExit(ctx context.Context) error {
	err := s.ctl.Wait(ctx)

	if code, signal, ok := proc.ExitStatus(err); ok {
		s.log.Info("child exited",
			zap.Int("code", code),
			zap.Int("signal", signal),
		)
		return nil
	}

	return err
}

// Close kills the child. Kill is idempotent, so Close is safe to call
// from multiple shutdown paths.
func (s *Session) Close() {
	s.ctl.Kill()
}
