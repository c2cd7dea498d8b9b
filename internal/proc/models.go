package proc

import (
	"fmt"
	"os/exec"
	"time"
)

var (
	ErrNotStarted     = fmt.Errorf("controller not started")
	ErrAlreadyStarted = fmt.Errorf("controller already started")
	ErrNotAlive       = fmt.Errorf("child process not alive")
	ErrKillTimeout    = fmt.Errorf("kill timeout")
)

// Status is the outcome of a ReadUntil call.
type Status int

const (
	// StatusOK means a line matching the terminator prefix was observed.
	StatusOK Status = iota

	// StatusErr means reading from the child's stdout failed.
	StatusErr

	// StatusTimeout means the deadline elapsed before a terminator line.
	// Lines collected so far are returned but must be treated as partial.
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusErr:
		return "err"
	case StatusTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

type Config struct {
	// Cmd is the path or name of the binary to execute
	Cmd string `conf:"cmd"`

	// Args is the list of arguments to pass to the command
	Args []string `conf:"args"`

	// LogName identifies this child in the I/O log
	LogName string `conf:"log_name"`

	// Cwd is the working directory in which
	// the binary should be executed
	Cwd string `conf:"cwd"`

	// Env is a map of environment variables
	// to set when running the command
	Env map[string]string `conf:"env"`
}

// killWait bounds how long Kill waits for the child to be reaped
// after the kill signal was sent.
const killWait = 5 * time.Second

// ExitStatus extracts the exit code and, if the process was terminated
// by a signal, the signal number from the error returned by the child's
// wait. A nil error means a clean zero exit.
func ExitStatus(err error) (code int, signal int, ok bool) {
	if err == nil {
		return 0, 0, true
	}

	exitErr, isExit := err.(*exec.ExitError)
	if !isExit {
		return 0, 0, false
	}

	if code := exitErr.ExitCode(); code >= 0 {
		return code, 0, true
	}

	// ExitCode is -1 when the process died from a signal
	return -1, exitSignal(exitErr), true
}
