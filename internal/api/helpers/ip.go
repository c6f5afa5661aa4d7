package helpers

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the client address. The first X-Forwarded-For entry is
// honoured only when the deployment explicitly trusts the proxy to strip
// client-supplied values; otherwise the direct peer wins, since anyone can
// send the header.
func ClientIP(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first := strings.TrimSpace(strings.Split(xff, ",")[0])
			if ip := net.ParseIP(first); ip != nil {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
