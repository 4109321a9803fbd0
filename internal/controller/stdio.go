package controller

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
)

const (
	initialLineBuffer = 64 * 1024
	// linePreview bounds how much of an oversized line is kept for logs.
	linePreview = 256
	// DefaultMaxLineBytes bounds a single inbound line.
	DefaultMaxLineBytes = 1024 * 1024
)

// ErrTransportClosed is returned when attempting to use a closed transport.
var ErrTransportClosed = errors.New("controller: transport closed")

type scanResult struct {
	data []byte
	err  error
}

// StdioTransport implements Transport over a reader/writer pair, normally
// os.Stdin and os.Stdout.
type StdioTransport struct {
	in      io.Reader
	out     io.Writer
	maxLine int

	writeMu sync.Mutex

	startOnce sync.Once
	lines     chan scanResult

	closeMu sync.Mutex
	closed  bool
	closeCh chan struct{}
}

// NewStdioTransport creates a transport on os.Stdin and os.Stdout.
func NewStdioTransport(maxLine int) *StdioTransport {
	return NewStdioTransportWithIO(os.Stdin, os.Stdout, maxLine)
}

// NewStdioTransportWithIO creates a transport with custom IO.
func NewStdioTransportWithIO(in io.Reader, out io.Writer, maxLine int) *StdioTransport {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}
	return &StdioTransport{
		in:      in,
		out:     out,
		maxLine: maxLine,
		lines:   make(chan scanResult),
		closeCh: make(chan struct{}),
	}
}

// Send writes data followed by a newline in a single write.
func (t *StdioTransport) Send(ctx context.Context, data []byte) error {
	if t.isClosed() {
		return ErrTransportClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, data...)
	frame = append(frame, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_, err := t.out.Write(frame)
	return err
}

// Receive returns the next line. A single goroutine owns the reader so a
// cancelled Receive never loses or reorders lines. An oversized line is
// returned as a *MalformedRequestError and reading continues.
func (t *StdioTransport) Receive(ctx context.Context) ([]byte, error) {
	if t.isClosed() {
		return nil, ErrTransportClosed
	}
	t.startOnce.Do(func() { go t.scan() })

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closeCh:
		return nil, ErrTransportClosed
	case r, ok := <-t.lines:
		if !ok {
			return nil, io.EOF
		}
		return r.data, r.err
	}
}

func (t *StdioTransport) scan() {
	defer close(t.lines)

	reader := bufio.NewReaderSize(t.in, min(initialLineBuffer, t.maxLine+2))

	for {
		data, err := t.readLine(reader)
		if err != nil && !errors.Is(err, ErrMalformedRequest) {
			if !errors.Is(err, io.EOF) {
				select {
				case t.lines <- scanResult{err: err}:
				case <-t.closeCh:
				}
			}
			return
		}

		select {
		case t.lines <- scanResult{data: data, err: err}:
		case <-t.closeCh:
			return
		}
	}
}

// readLine returns the next line without its terminator. A line longer
// than maxLine is consumed up to its newline and reported as a
// *MalformedRequestError, so the following lines are still read.
func (t *StdioTransport) readLine(r *bufio.Reader) ([]byte, error) {
	var (
		line    []byte
		tooLong bool
	)
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			line = append(line, chunk...)
			if len(trimEOL(line)) > t.maxLine {
				tooLong = true
				line = line[:min(len(line), linePreview)]
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		if tooLong {
			return nil, &MalformedRequestError{
				Line:   string(line),
				Reason: "line too long",
				Cause:  ErrLineTooLong,
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(line) > 0 {
				return trimEOL(line), nil
			}
			return nil, err
		}
		return trimEOL(line), nil
	}
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte{'\n'})
	return bytes.TrimSuffix(line, []byte{'\r'})
}

// Close closes the transport. The underlying reader is not closed.
func (t *StdioTransport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.closeCh)
	}
	return nil
}

func (t *StdioTransport) isClosed() bool {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	return t.closed
}
