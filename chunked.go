package forwardcache

import (
	"bytes"
	"fmt"
	"strconv"
)

// chunkScanner tracks chunked transfer-coding framing across reads.
// It never copies or rewrites the stream; it only answers "has the final
// chunk (and its trailer section) been seen yet".
type chunkScanner struct {
	state scanState
	line  []byte
	// remain counts the data bytes of the current chunk still outstanding,
	// including the CRLF that closes it
	remain int64
	done   bool
}

type scanState int

const (
	scanSize scanState = iota
	scanData
	scanTrailer
)

// feed consumes the next piece of the body stream and reports whether the
// message is complete. Calling feed after completion is a no-op.
func (s *chunkScanner) feed(p []byte) (bool, error) {
	for i := 0; i < len(p); i++ {
		switch s.state {
		case scanData:
			skip := s.remain
			if left := int64(len(p) - i); left < skip {
				skip = left
			}
			s.remain -= skip
			i += int(skip) - 1
			if s.remain == 0 {
				s.state = scanSize
			}
		case scanSize:
			if p[i] != '\n' {
				s.line = append(s.line, p[i])
				continue
			}
			size, err := parseChunkSize(s.line)
			if err != nil {
				return false, err
			}
			s.line = s.line[:0]
			if size == 0 {
				s.state = scanTrailer
			} else {
				s.remain = size + 2
				s.state = scanData
			}
		case scanTrailer:
			if p[i] != '\n' {
				s.line = append(s.line, p[i])
				continue
			}
			if len(bytes.TrimRight(s.line, "\r")) == 0 {
				s.done = true
				return true, nil
			}
			s.line = s.line[:0]
		}
	}
	return s.done, nil
}

// parseChunkSize parses the hex size from a chunk size line, ignoring any
// chunk extensions after a semicolon.
func parseChunkSize(line []byte) (int64, error) {
	line = bytes.TrimRight(line, "\r")
	if i := bytes.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	size, err := strconv.ParseInt(string(bytes.TrimSpace(line)), 16, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("bad chunk size line %q", line)
	}
	return size, nil
}
