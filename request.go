package forwardcache

import (
	"bytes"
	"errors"
	"strings"
	"time"
)

const (
	MethodGet     = "GET"
	MethodPost    = "POST"
	MethodConnect = "CONNECT"
)

// Request is the parsed form of one incoming client request.
type Request struct {
	// Method is the request method verbatim. Unknown methods survive
	// parsing; they are rejected by the connection handler.
	Method string
	// RawTarget is the request-target exactly as the client sent it.
	RawTarget string
	// URL is the cache key: the absolute target for GET/POST, the bare
	// host for CONNECT.
	URL string
	// Host and Port are where to reach the origin.
	Host string
	Port string
	// StartLine is the raw first line, kept for logging.
	StartLine string
	// ReceivedAt is when the request bytes arrived.
	ReceivedAt time.Time
	// Raw is the complete request as received, so it can be forwarded
	// verbatim or augmented with a conditional header.
	Raw []byte
}

// ParseRequest extracts method, target, host and port from the request
// start line. The target is either an absolute http:// URL (GET/POST,
// default port 80) or a host:port authority (CONNECT, default port 443).
func ParseRequest(raw []byte, receivedAt time.Time) (Request, error) {
	req := Request{
		ReceivedAt: receivedAt,
		Raw:        append([]byte(nil), raw...),
	}

	line := raw
	if i := bytes.IndexByte(raw, '\r'); i >= 0 {
		line = raw[:i]
	}
	req.StartLine = string(line)

	parts := strings.Fields(req.StartLine)
	if len(parts) < 2 {
		return Request{}, errors.New("malformed request line")
	}
	req.Method = parts[0]
	req.RawTarget = parts[1]

	if strings.HasPrefix(req.RawTarget, "http://") {
		// absolute form: the host is everything between the scheme and
		// the third slash, and the port is always 80
		req.URL = req.RawTarget
		authority := req.RawTarget[len("http://"):]
		if i := strings.IndexByte(authority, '/'); i >= 0 {
			authority = authority[:i]
		}
		req.Host = authority
		req.Port = "80"
	} else {
		// authority form, as sent by CONNECT
		if i := strings.LastIndexByte(req.RawTarget, ':'); i >= 0 {
			req.Host = req.RawTarget[:i]
			req.Port = req.RawTarget[i+1:]
		} else {
			req.Host = req.RawTarget
			req.Port = "443"
		}
		req.URL = req.Host
	}
	if req.Host == "" {
		return Request{}, errors.New("request target has no host")
	}

	return req, nil
}

// withConditional returns a copy of the raw request with the given header
// section inserted immediately after the start line. The section must start
// with a CRLF.
func withConditional(raw []byte, section string) []byte {
	idx := bytes.IndexByte(raw, '\r')
	if idx < 0 {
		idx = len(raw)
	}
	out := make([]byte, 0, len(raw)+len(section))
	out = append(out, raw[:idx]...)
	out = append(out, section...)
	out = append(out, raw[idx:]...)
	return out
}
