package termproto

import (
	"bytes"
	"io"
	"strings"
)

// MaxLineLength is the longest line LineReader buffers. Longer output without
// a line terminator is returned as a line of its own.
const MaxLineLength = 1024

// LineReader reads lines from a serial port that has a read timeout. Output
// that arrives in several reads is joined until a newline shows up or a read
// times out. A timeout flushes whatever is buffered, so prompts printed
// without a newline still come through.
type LineReader struct {
	r       io.Reader
	buf     [256]byte
	pending []byte
}

// NewLineReader creates a new LineReader reading from r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: r}
}

// ReadLine reads from the underlying reader at most once and returns the next
// line with surrounding whitespace stripped. A read that times out returns the
// buffered partial line, or an empty string if nothing is buffered.
func (l *LineReader) ReadLine() (string, error) {
	if line, ok := l.next(); ok {
		return line, nil
	}

	n, err := l.r.Read(l.buf[:])
	l.pending = append(l.pending, l.buf[:n]...)
	if err != nil {
		return "", err
	}

	if n == 0 && len(l.pending) > 0 {
		return l.flush(), nil
	}

	line, _ := l.next()
	return line, nil
}

// Buffered returns the number of bytes of a partial line held by l.
func (l *LineReader) Buffered() int {
	return len(l.pending)
}

func (l *LineReader) next() (string, bool) {
	i := bytes.IndexByte(l.pending, '\n')
	if i == -1 {
		if len(l.pending) < MaxLineLength {
			return "", false
		}
		i = len(l.pending) - 1
	}

	line := string(l.pending[:i+1])
	l.pending = append(l.pending[:0], l.pending[i+1:]...)

	return strings.TrimSpace(line), true
}

func (l *LineReader) flush() string {
	line := string(l.pending)
	l.pending = l.pending[:0]
	return strings.TrimSpace(line)
}
