// Package health serves liveness and readiness probes.
package health

import (
	"net/http"
	"sync/atomic"
)

var (
	ready  atomic.Bool
	detail atomic.Value // string
)

// SetReady records readiness with a short reason shown by /readyz.
func SetReady(v bool, reason string) {
	ready.Store(v)
	detail.Store(reason)
}

func Ready() bool { return ready.Load() }

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readyz is 200 while ready, 503 otherwise; the body carries the reason.
func Readyz(w http.ResponseWriter, r *http.Request) {
	reason, _ := detail.Load().(string)
	if Ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready " + reason))
		return
	}
	http.Error(w, "not ready "+reason, http.StatusServiceUnavailable)
}
