package transport

import (
	"bufio"
	"io"
	"strings"
)

// frameReader splits an SSE body into data payloads.
// Multiple data lines in one frame are joined with "\n"; event names,
// ids and comments are ignored.
type frameReader struct {
	r    *bufio.Reader
	data []string
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next non-empty data payload. At the end of the body a
// trailing frame without its blank line is still returned before the error.
func (f *frameReader) Next() (string, error) {
	for {
		line, err := f.r.ReadString('\n')
		if err != nil {
			// Flush a final frame that was not terminated by a blank line.
			if line != "" {
				f.consume(strings.TrimRight(line, "\r\n"))
			}
			if payload := f.flush(); payload != "" {
				return payload, nil
			}
			return "", err
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			// Empty line = end of frame
			if payload := f.flush(); payload != "" {
				return payload, nil
			}
			continue
		}
		f.consume(line)
	}
}

func (f *frameReader) consume(line string) {
	if after, found := strings.CutPrefix(line, "data:"); found {
		f.data = append(f.data, strings.TrimPrefix(after, " "))
	}
}

func (f *frameReader) flush() string {
	if len(f.data) == 0 {
		return ""
	}
	payload := strings.TrimSpace(strings.Join(f.data, "\n"))
	f.data = f.data[:0]
	return payload
}
