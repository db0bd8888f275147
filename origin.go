package forwardcache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/always-cache/forward-cache/cache"
)

// bufferSize bounds single reads on both the client and origin side.
// Requests larger than this are truncated silently.
const bufferSize = 64 * 1024

var headerTerminator = []byte("\r\n\r\n")

// dialOrigin resolves the host and opens a TCP connection to it.
func dialOrigin(host, port string) (net.Conn, error) {
	return net.Dial("tcp", net.JoinHostPort(host, port))
}

// writeAll sends the whole buffer to the connection.
func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// readHeader reads from the origin until the CRLF-CRLF header terminator has
// arrived. It returns everything read so far (which may include a body
// prefix) and the offset at which the body starts.
func readHeader(conn net.Conn) ([]byte, int, error) {
	buf := make([]byte, 0, bufferSize)
	chunk := make([]byte, bufferSize)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if i := bytes.Index(buf, headerTerminator); i >= 0 {
				return buf, i + len(headerTerminator), nil
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil, 0, errors.New("origin closed connection before end of header")
			}
			return nil, 0, err
		}
		if len(buf) >= bufferSize {
			return nil, 0, errors.New("response header exceeds buffer size")
		}
	}
}

// streamBody reads the response body from the origin and relays every read
// to the client as-is. The framing is taken from the header block:
// Content-Length when present, chunked transfer-coding when declared, and
// read-until-close otherwise. first is the body prefix that arrived with
// the header (already relayed by the caller); it becomes the first
// collected segment.
func streamBody(origin net.Conn, client io.Writer, header, first []byte) ([][]byte, error) {
	fields := cache.ParseFields(header)
	segments := make([][]byte, 0, 4)
	if len(first) > 0 {
		segments = append(segments, first)
	}

	relay := func(seg []byte) error {
		segments = append(segments, seg)
		return writeAll(client, seg)
	}
	buf := make([]byte, bufferSize)

	if val, ok := fields["Content-Length"]; ok {
		length, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return nil, fmt.Errorf("bad Content-Length %q", val)
		}
		received := len(first)
		for received < length {
			n, err := origin.Read(buf)
			if n > 0 {
				received += n
				if rerr := relay(append([]byte(nil), buf[:n]...)); rerr != nil {
					return nil, rerr
				}
			}
			if err != nil {
				return nil, fmt.Errorf("origin body truncated: %w", err)
			}
		}
		return segments, nil
	}

	if val, ok := fields["Transfer-Encoding"]; ok && strings.Contains(val, "chunked") {
		var scanner chunkScanner
		done, err := scanner.feed(first)
		if err != nil {
			return nil, err
		}
		for !done {
			n, err := origin.Read(buf)
			if n > 0 {
				seg := append([]byte(nil), buf[:n]...)
				if done, err = scanner.feed(seg); err != nil {
					return nil, err
				}
				if rerr := relay(seg); rerr != nil {
					return nil, rerr
				}
			}
			if err != nil {
				return nil, fmt.Errorf("origin chunked body truncated: %w", err)
			}
		}
		return segments, nil
	}

	// no framing headers: the origin signals the end by closing
	for {
		n, err := origin.Read(buf)
		if n > 0 {
			if rerr := relay(append([]byte(nil), buf[:n]...)); rerr != nil {
				return nil, rerr
			}
		}
		if err == io.EOF {
			return segments, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
