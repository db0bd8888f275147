package forwardcache

import (
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/always-cache/forward-cache/cache"

	"github.com/rs/zerolog"
)

// Proxy is a forward HTTP/HTTPS caching proxy. GET and POST requests are
// forwarded to the origin named in the absolute request target, with GET
// responses cached in the shared store; CONNECT requests become opaque
// byte tunnels.
type Proxy struct {
	cache  cache.Store
	events *EventLog
	log    zerolog.Logger
	// dial opens the connection to an origin; tests swap it out
	dial func(host, port string) (net.Conn, error)
}

// NewProxy wires a proxy to its response store and request event log.
// A nil event log discards event lines.
func NewProxy(store cache.Store, events *EventLog, logger zerolog.Logger) *Proxy {
	return &Proxy{
		cache:  store,
		events: events,
		log:    logger,
		dial:   dialOrigin,
	}
}

// Serve accepts clients forever, one handler goroutine per connection.
// Client ids increase monotonically and wrap back to zero at the int32
// maximum. It returns when the listener is closed.
func (p *Proxy) Serve(ln net.Listener) error {
	clientID := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			p.log.Error().Err(err).Msg("Could not accept connection")
			continue
		}
		go p.HandleConn(conn, clientID, peerIP(conn))
		if clientID == math.MaxInt32 {
			clientID = 0
		} else {
			clientID++
		}
	}
}

// peerIP returns the remote IP without the port.
func peerIP(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// client bundles everything the per-connection code paths need: the socket,
// the assigned id, and the loggers.
type client struct {
	conn net.Conn
	id   int
	ip   string
	log  zerolog.Logger
	p    *Proxy
}

// eventf appends one "<id>: <message>" line to the request event log.
func (c *client) eventf(format string, args ...any) {
	c.p.events.Appendf("%d: %s", c.id, fmt.Sprintf(format, args...))
}

// HandleConn runs the full request lifecycle for one accepted client
// connection. Any failure is logged and ends this connection only; both
// sockets are closed on every exit path.
func (p *Proxy) HandleConn(conn net.Conn, id int, ip string) {
	defer conn.Close()
	c := &client{
		conn: conn,
		id:   id,
		ip:   ip,
		log:  p.log.With().Int("client", id).Str("ip", ip).Logger(),
		p:    p,
	}
	if err := p.handle(c); err != nil {
		c.eventf("ERROR %v", err)
		c.log.Error().Err(err).Msg("Connection failed")
	}
}

func (p *Proxy) handle(c *client) error {
	buf := make([]byte, bufferSize)
	n, err := c.conn.Read(buf)
	if err != nil {
		return fmt.Errorf("receive request: %w", err)
	}
	req, err := ParseRequest(buf[:n], time.Now())
	if err != nil {
		return err
	}
	c.eventf("%s from %s @ %s", req.Method, c.ip, req.ReceivedAt.Format(time.ANSIC))
	c.log.Debug().Str("method", req.Method).Str("target", req.RawTarget).Msg("Incoming request")

	// a GET may be answerable from the cache alone, in which case the
	// origin is never contacted
	var stored cache.Response
	var found bool
	state := cacheMiss
	if req.Method == MethodGet {
		stored, state, found = p.evaluate(req.URL, time.Now())
		if state == cacheFresh {
			c.eventf("in cache, valid")
			c.log.Debug().Str("url", req.URL).Msg("Serving fresh cached response")
			return serveStored(c.conn, stored)
		}
	}

	origin, err := p.dial(req.Host, req.Port)
	if err != nil {
		return fmt.Errorf("connect to origin: %w", err)
	}
	defer origin.Close()
	c.eventf("Requesting %s from %s", req.StartLine, req.RawTarget)

	switch {
	case req.Method == MethodConnect:
		if err := writeAll(c.conn, []byte(connectHandshake)); err != nil {
			return err
		}
		tunnel(c.conn, origin)
		c.eventf("Tunnel closed")
		return nil
	case req.Method == MethodGet && state == cacheRevalidate:
		c.eventf("in cache, requires validation")
		return p.revalidate(c, req, stored, origin)
	case req.Method == MethodGet || req.Method == MethodPost:
		switch {
		case req.Method != MethodGet:
		case found:
			c.eventf("in cache, but expired at %s", stored.ExpiresAt.Format(time.ANSIC))
		default:
			c.eventf("not in cache")
		}
		return p.fetch(c, req, origin)
	default:
		return fmt.Errorf("unsupported method %q", req.Method)
	}
}

// fetch forwards the request to the origin and streams the response back to
// the client, collecting body segments for the cache on the way.
func (p *Proxy) fetch(c *client, req Request, origin net.Conn) error {
	if err := writeAll(origin, req.Raw); err != nil {
		return fmt.Errorf("send request to origin: %w", err)
	}
	raw, bodyStart, err := readHeader(origin)
	if err != nil {
		return err
	}
	if err := writeAll(c.conn, raw); err != nil {
		return fmt.Errorf("respond to client: %w", err)
	}
	header := raw[:bodyStart]
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
	c.log.Debug().Int("status", res.StatusCode).Str("url", req.URL).Msg("Response relayed")
	p.maybeStore(c, req, res)
	return nil
}
