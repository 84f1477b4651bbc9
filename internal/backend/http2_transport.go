package backend

import (
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// newH2TunedClient builds an http.Client whose transport prefers HTTP/2
// for the outbound connection to an HTTP/SSE upstream backend. This
// repurposes the teacher's golang.org/x/net/http2 server-side tuning
// (internal/mitm/mitm.go's http2.Server, used there to terminate TLS
// connections from a client) into client-side transport tuning for the
// proxy's own connection to its upstream: same dependency, same impulse
// to bound idle time and ping timeouts explicitly rather than take the
// zero-value defaults.
func newH2TunedClient() *http.Client {
	transport := &http2.Transport{
		ReadIdleTimeout: 90 * time.Second,
		PingTimeout:     15 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}
