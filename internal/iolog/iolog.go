// Package iolog is the logging collaborator for child-process I/O:
// every line received from and every text written to a child passes
// through it. Implementations must be fire-and-forget; they may drop
// output but must never block or fail a read or write.
package iolog

import (
	"strings"

	"go.uber.org/zap"
)

type Log interface {
	// Incoming records one complete line received from the child
	// identified by name.
	Incoming(line, name string)

	// Outgoing records text about to be written to the child
	// identified by name.
	Outgoing(text, name string)
}

type zapLog struct {
	log *zap.Logger
}

func New(log *zap.Logger) Log {
	return &zapLog{log: log.Named("io")}
}

func (l *zapLog) Incoming(line, name string) {
	l.log.Debug("recv",
		zap.String("proc", name),
		zap.String("line", line),
	)
}

func (l *zapLog) Outgoing(text, name string) {
	l.log.Debug("send",
		zap.String("proc", name),
		zap.String("text", strings.TrimRight(text, "\r\n")),
	)
}

type nopLog struct{}

func Nop() Log {
	return nopLog{}
}

func (nopLog) Incoming(string, string) {}
func (nopLog) Outgoing(string, string) {}
