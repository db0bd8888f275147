package forwardcache

import (
	"io"
	"net"
)

const connectHandshake = "HTTP/1.1 200 Connection Established\r\n\r\n"

// tunnel relays bytes between the client and the origin in both directions
// until either side closes. No parsing or logging of payload bytes happens
// here. Both sockets are closed before returning.
func tunnel(client, origin net.Conn) {
	done := make(chan struct{}, 2)
	relay := func(dst, src net.Conn) {
		io.Copy(dst, src)
		done <- struct{}{}
	}
	go relay(origin, client)
	go relay(client, origin)

	// the first EOF or error ends the tunnel; closing both sockets
	// unblocks the other direction
	<-done
	client.Close()
	origin.Close()
	<-done
}
