package forwardcache

import (
	"net"
	"time"

	"github.com/always-cache/forward-cache/cache"
)

// cacheState is the outcome of a cache lookup for a GET request.
type cacheState int

const (
	// cacheMiss: not cached, or cached but expired with nothing to
	// revalidate on. The request goes to the origin as-is.
	cacheMiss cacheState = iota
	// cacheFresh: the stored response can be served without contacting
	// the origin.
	cacheFresh
	// cacheRevalidate: the stored response is usable if the origin
	// confirms it via a conditional request.
	cacheRevalidate
)

// evaluate decides how to answer a GET for the given URL from the cache.
// The stored response is returned whenever one was found, even if expired,
// so the handler can log its expiry. No I/O happens here, so fresh hits
// never touch the origin.
func (p *Proxy) evaluate(url string, now time.Time) (cache.Response, cacheState, bool) {
	res, ok := p.cache.Get(url)
	if !ok {
		return cache.Response{}, cacheMiss, false
	}
	if !now.After(res.ExpiresAt) && !res.NoCache {
		return res, cacheFresh, true
	}
	if res.ETag != "" || !res.LastModified.IsZero() {
		return res, cacheRevalidate, true
	}
	return res, cacheMiss, true
}

// serveStored writes the stored response to the client: the header block
// first, then every body segment in order.
func serveStored(client net.Conn, res cache.Response) error {
	if err := writeAll(client, res.Header); err != nil {
		return err
	}
	for _, seg := range res.Segments {
		if err := writeAll(client, seg); err != nil {
			return err
		}
	}
	return nil
}

// revalidate sends the client request to the origin with a conditional
// header inserted after the start line, preferring If-None-Match over
// If-Modified-Since. A 304 confirms the stored response, which is then
// served as on a fresh hit. Anything else is relayed to the client
// end-to-end and replaces the cache entry (subject to the usual storing
// rules).
func (p *Proxy) revalidate(c *client, req Request, stored cache.Response, origin net.Conn) error {
	var section string
	if stored.ETag != "" {
		section = "\r\nIf-None-Match: " + stored.ETag
	} else {
		section = "\r\nIf-Modified-Since: " + stored.Fields["Last-Modified"]
	}

	if err := writeAll(origin, withConditional(req.Raw, section)); err != nil {
		return err
	}
	raw, bodyStart, err := readHeader(origin)
	if err != nil {
		return err
	}
	header := raw[:bodyStart]

	startLine, statusCode, err := cache.ParseStatusLine(header)
	if err != nil {
		return err
	}
	if statusCode == 304 {
		c.eventf("Received %s from %s", startLine, req.URL)
		c.eventf("Responding %s", startLine)
		return serveStored(c.conn, stored)
	}

	// not confirmed: the header already received belongs to the client,
	// and the rest of the body is streamed through as usual
	if err := writeAll(c.conn, raw); err != nil {
		return err
	}
	segments, err := streamBody(origin, c.conn, header, raw[bodyStart:])
	if err != nil {
		return err
	}
	res, err := cache.ParseResponse(req.URL, header, segments, time.Now())
	if err != nil {
		return err
	}
	c.eventf("Received %s from %s", res.StartLine, req.URL)
	c.eventf("Responding %s", res.StartLine)
	p.maybeStore(c, req, res)
	return nil
}

// maybeStore inserts the response into the cache when allowed (GET without
// no-store) and emits the cache policy log line for GET 200 responses.
func (p *Proxy) maybeStore(c *client, req Request, res cache.Response) {
	if req.Method == MethodGet && !res.NoStore {
		p.cache.Put(res.URL, res)
	}
	if req.Method != MethodGet || res.StatusCode != 200 {
		return
	}
	switch {
	case res.NoStore:
		c.eventf("not cachable because no-store")
	case res.ETag != "" || !res.LastModified.IsZero():
		c.eventf("cached, but requires re-validation")
	default:
		c.eventf("cached, expires at %s", res.ExpiresAt.Format(time.ANSIC))
	}
}
