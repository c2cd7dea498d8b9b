package proc

import (
	"bufio"
	"bytes"
	"io"
	"sync"

	"github.com/tetherproc/tether/internal/iolog"
	"go.uber.org/zap"
)

const (
	// lineBacklog bounds how many complete lines may sit unconsumed
	// between ReadUntil calls before the reader blocks, mirroring
	// pipe backpressure.
	lineBacklog = 256

	maxLineSize = 1 << 20
)

// lineReader is the background read loop for one spawned child. It
// scans stdout into complete lines, drops empty ones, reports each
// line to the I/O log and delivers it on a channel. One reader lives
// for the whole lifetime of a spawn; a timed-out ReadUntil simply
// stops receiving, so no goroutine is ever abandoned mid-read.
type lineReader struct {
	r     io.Reader
	name  string
	lines chan string
	done  chan struct{}

	stopOnce sync.Once

	mu  sync.Mutex
	err error

	iolog iolog.Log
	log   *zap.Logger
}

func newLineReader(r io.Reader, name string, iol iolog.Log, log *zap.Logger) *lineReader {
	return &lineReader{
		r:     r,
		name:  name,
		lines: make(chan string, lineBacklog),
		done:  make(chan struct{}),
		iolog: iol,
		log:   log.Named("reader"),
	}
}

// run consumes the stream until a read error, EOF or stop. It closes
// the line channel on the way out; the terminal error is available
// via Err afterwards.
func (r *lineReader) run() {
	defer close(r.lines)

	scanner := bufio.NewScanner(r.r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	scanner.Split(scanLines)

	for scanner.Scan() {
		line := scanner.Text()

		// a \r\n pair yields one line and one empty token
		if line == "" {
			continue
		}

		r.iolog.Incoming(line, r.name)

		select {
		case r.lines <- line:
		case <-r.done:
			r.setErr(io.ErrClosedPipe)
			return
		}
	}

	err := scanner.Err()
	if err == nil {
		// the child closed its stdout, there is nothing left to read
		err = io.EOF
	}

	r.setErr(err)
	r.log.Debug("read loop ended", zap.Error(err))
}

// stop detaches the reader so a blocked channel send cannot outlive
// the controller. Closing the underlying pipe ends the scan itself.
func (r *lineReader) stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
}

func (r *lineReader) Lines() <-chan string {
	return r.lines
}

// Err returns the error that ended the read loop. It is meaningful
// once the line channel is closed.
func (r *lineReader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.err
}

func (r *lineReader) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.err = err
}

// scanLines splits on any single \r or \n. The empty token produced
// between the two characters of a \r\n pair is discarded by the read
// loop, so all three terminator conventions split identically.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}

	return 0, nil, nil
}
