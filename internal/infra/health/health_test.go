package health

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadyz(t *testing.T) {
	SetReady(false, "syncing")
	rec := httptest.NewRecorder()
	Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "syncing") {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}

	SetReady(true, "streaming")
	rec = httptest.NewRecorder()
	Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
}
