package proto

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// ErrRecordTooLarge reports a line that exceeded the reader limit. The line
// has been consumed; the stream is still usable.
var ErrRecordTooLarge = errors.New("record exceeds size limit")

// LineReader splits a byte stream into newline-terminated records. It copes
// with records split across reads and with many records in one read. A
// trailing fragment without a terminator at EOF is dropped.
type LineReader struct {
	r     *bufio.Reader
	limit int
}

// NewLineReader wraps r. limit <= 0 disables the size limit.
func NewLineReader(r io.Reader, limit int) *LineReader {
	return &LineReader{r: bufio.NewReader(r), limit: limit}
}

// Next returns the next non-blank record without its terminator.
func (l *LineReader) Next() ([]byte, error) {
	for {
		line, tooLarge, err := l.readLine()
		if err != nil {
			return nil, err
		}
		if tooLarge {
			return nil, ErrRecordTooLarge
		}
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return line, nil
	}
}

func (l *LineReader) readLine() ([]byte, bool, error) {
	var buf []byte
	tooLarge := false
	for {
		frag, err := l.r.ReadSlice('\n')
		if !tooLarge {
			if l.limit > 0 && len(buf)+len(frag) > l.limit+1 {
				tooLarge = true
				buf = nil
			} else {
				buf = append(buf, frag...)
			}
		}

		switch {
		case err == nil:
			return bytes.TrimSuffix(buf, []byte{'\n'}), tooLarge, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return nil, false, err
		}
	}
}
