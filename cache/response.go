package cache

import (
	"bytes"
	"errors"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

var crlf = []byte("\r\n")

// Response is one cached (or in-flight) origin response together with the
// freshness metadata derived from its headers. Values stored in a cache are
// immutable; replacement happens by whole-value swap.
type Response struct {
	// StatusCode is parsed from the status line.
	StatusCode int
	// URL is the request URL this response answers, i.e. the cache key.
	URL string
	// StartLine is the raw status line without the trailing CRLF.
	StartLine string
	// Header is the full header block: status line, header fields and the
	// terminating blank line, exactly as received.
	Header []byte
	// Fields maps canonicalized header names to values. Later duplicates
	// overwrite earlier ones.
	Fields map[string]string
	// Segments holds the message body in the chunks it arrived in,
	// preserving the origin's framing boundaries.
	Segments [][]byte

	NoStore      bool
	NoCache      bool
	ReceivedAt   time.Time
	ExpiresAt    time.Time
	ETag         string
	LastModified time.Time
}

// ParseResponse derives a Response from the received header block and body
// segments. A malformed status line is an error; missing or malformed header
// fields simply count as not present.
func ParseResponse(url string, header []byte, segments [][]byte, receivedAt time.Time) (Response, error) {
	startLine, statusCode, err := ParseStatusLine(header)
	if err != nil {
		return Response{}, err
	}

	res := Response{
		StatusCode: statusCode,
		URL:        url,
		StartLine:  startLine,
		Header:     header,
		Fields:     ParseFields(header),
		Segments:   segments,
		ReceivedAt: receivedAt,
	}

	cacheControl := res.Fields["Cache-Control"]
	res.NoStore = strings.Contains(cacheControl, "no-store")
	res.NoCache = strings.Contains(cacheControl, "no-cache")

	// freshness lifetime comes from max-age only; without it the response
	// is stale the moment it is received
	maxAge := 0
	if val, ok := ParseCacheControl(cacheControl).Get("max-age"); ok {
		if age, err := strconv.Atoi(val); err == nil && age > 0 {
			maxAge = age
		}
	}
	res.ExpiresAt = receivedAt.Add(time.Duration(maxAge) * time.Second)

	res.ETag = res.Fields["Etag"]

	if val, ok := res.Fields["Last-Modified"]; ok {
		if t, err := time.Parse(time.RFC1123, val); err == nil {
			res.LastModified = t
		}
	}

	return res, nil
}

// ParseStatusLine returns the first line of the header block and the status
// code parsed from its middle token.
func ParseStatusLine(header []byte) (string, int, error) {
	line := header
	if i := bytes.Index(header, crlf); i >= 0 {
		line = header[:i]
	}
	parts := strings.Fields(string(line))
	if len(parts) < 2 {
		return "", 0, errors.New("malformed status line")
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, errors.New("malformed status code")
	}
	return string(line), code, nil
}

// ParseFields splits the header block into a name-to-value map. Names are
// canonicalized so lookups are case-insensitive; the last of any duplicates
// wins. Lines without a name-value separator are skipped.
func ParseFields(header []byte) map[string]string {
	fields := make(map[string]string)
	lines := bytes.Split(header, crlf)
	for _, line := range lines[1:] {
		name, value, ok := bytes.Cut(line, []byte(": "))
		if !ok || len(name) == 0 {
			continue
		}
		key := textproto.CanonicalMIMEHeaderKey(string(name))
		fields[key] = string(value)
	}
	return fields
}

// Clone returns a copy that is safe to use without holding the cache lock.
// Segment contents are shared, which is fine since stored responses are
// never mutated.
func (r Response) Clone() Response {
	clone := r
	clone.Fields = make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		clone.Fields[k] = v
	}
	clone.Segments = make([][]byte, len(r.Segments))
	copy(clone.Segments, r.Segments)
	return clone
}

// Body returns the message body as one byte slice.
func (r Response) Body() []byte {
	var buf bytes.Buffer
	for _, seg := range r.Segments {
		buf.Write(seg)
	}
	return buf.Bytes()
}
