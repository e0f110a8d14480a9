package network

import (
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// NewWSDialer returns a websocket dialer with bounded connect and handshake
// times. It honours HTTPS_PROXY like the default HTTP transport.
func NewWSDialer(handshake time.Duration) *websocket.Dialer {
	if handshake <= 0 {
		handshake = 10 * time.Second
	}
	nd := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	return &websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		NetDialContext:    nd.DialContext,
		HandshakeTimeout:  handshake,
		ReadBufferSize:    64 << 10,
		WriteBufferSize:   4 << 10,
		EnableCompression: false,
	}
}
