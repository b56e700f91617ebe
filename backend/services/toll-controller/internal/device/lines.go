package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrLineTooLong is returned once for each line that exceeded the size limit. The bytes of
// that line are dropped up to and including its terminator.
var ErrLineTooLong = errors.New("device: line too long")

const defaultMaxLine = 1024

// LineReader frames newline-terminated lines from r. It tolerates readers that return
// (0, nil) on a read timeout, re-checking ctx between reads.
type LineReader struct {
	r          io.Reader
	chunk      []byte
	pending    []byte
	maxLine    int
	discarding bool
}

// NewLineReader returns a reader with the given line limit (bytes, excluding terminator).
func NewLineReader(r io.Reader, maxLine int) *LineReader {
	if maxLine <= 0 {
		maxLine = defaultMaxLine
	}
	return &LineReader{r: r, chunk: make([]byte, 256), maxLine: maxLine}
}

// ReadLine blocks until a full line is buffered and returns it without "\n" or "\r\n".
// Read errors from the underlying reader are returned as-is; a partial line is kept.
func (l *LineReader) ReadLine(ctx context.Context) (string, error) {
	for {
		if line, ok, err := l.take(); ok || err != nil {
			return line, err
		}

		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := l.r.Read(l.chunk)
		if n > 0 {
			l.pending = append(l.pending, l.chunk[:n]...)
		}
		if err != nil {
			if line, ok, _ := l.take(); ok {
				return line, nil
			}
			return "", err
		}
	}
}

func (l *LineReader) take() (string, bool, error) {
	i := bytes.IndexByte(l.pending, '\n')
	if i < 0 {
		if !l.discarding && len(l.pending) > l.maxLine {
			l.discarding = true
		}
		if l.discarding {
			l.pending = l.pending[:0]
		}
		return "", false, nil
	}

	line := string(bytes.TrimSuffix(l.pending[:i], []byte{'\r'}))
	l.pending = append(l.pending[:0], l.pending[i+1:]...)

	if l.discarding || len(line) > l.maxLine {
		l.discarding = false
		return "", false, fmt.Errorf("%w: limit %d bytes", ErrLineTooLong, l.maxLine)
	}
	return line, true, nil
}
