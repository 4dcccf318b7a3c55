package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kura/internal/apperr"
)

func TestOutcome(t *testing.T) {
	if got := Outcome(nil); got != "ok" {
		t.Errorf("Outcome(nil) = %q", got)
	}
	if got := Outcome(apperr.NotFound("load", "a", nil)); got != "not_found" {
		t.Errorf("Outcome(not found) = %q", got)
	}
	if got := Outcome(errors.New("boom")); got != "internal_error" {
		t.Errorf("Outcome(plain) = %q", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveIngest(time.Now(), 3, nil)
	m.ObserveSearch(nil)
	m.ObserveAnswer(errors.New("x"))
	m.ObserveProvider("openai", "embed", time.Now(), nil)
	m.ObserveCache("index", true)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.ObserveIngest(time.Now(), 5, nil)
	m.ObserveSearch(apperr.NotFound("search", "a", nil))
	m.ObserveCache("index", false)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`kura_ingest_total{outcome="ok"} 1`,
		`kura_chunks_indexed_total 5`,
		`kura_search_total{outcome="not_found"} 1`,
		`kura_cache_lookups_total{cache="index",result="miss"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNewUsesPrivateRegistry(t *testing.T) {
	// Two instances must not collide on registration.
	a, b := New(), New()
	if a.Gatherer() == b.Gatherer() {
		t.Error("expected distinct registries")
	}
}
