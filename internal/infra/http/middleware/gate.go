package middleware

import (
	"net"
	"net/http"

	"tradesim/internal/infra/netutil"
)

// AdminGate admits only peers whose remote address is in allowed. Forwarding
// headers are not trusted.
func AdminGate(allowed []*net.IPNet, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if ip := net.ParseIP(host); ip == nil || !netutil.Contains(allowed, ip) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
