package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// value читает текущее значение счётчика или gauge.
func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric %v", c.Desc())
	return 0
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.JobProcessed()
	m.JobProcessed()
	m.JobFailed()
	m.LoopStarted()
	m.SetQueue(7, true)
	m.ObserveRequest("/embed-image", "ok", 10*time.Millisecond)
	m.ObserveRequest("/embed-image", "unavailable", time.Millisecond)
	m.Enqueued()

	if got := value(t, m.processed); got != 2 {
		t.Errorf("processed = %v, want 2", got)
	}
	if got := value(t, m.failed); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
	if got := value(t, m.pending); got != 7 {
		t.Errorf("pending = %v, want 7", got)
	}
	if got := value(t, m.processing); got != 1 {
		t.Errorf("processing = %v, want 1", got)
	}
	if got := value(t, m.requests.WithLabelValues("/embed-image", "unavailable")); got != 1 {
		t.Errorf("unavailable requests = %v, want 1", got)
	}

	m.SetQueue(0, false)
	if got := value(t, m.processing); got != 0 {
		t.Errorf("processing = %v, want 0", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.JobProcessed()
	m.JobFailed()
	m.LoopStarted()
	m.SetQueue(1, true)
	m.ObserveBatch(time.Second)
	m.ObserveRequest("/health", "ok", time.Second)
	m.Enqueued()
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.JobProcessed()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "photovault_embeddings_processed_total 1") {
		t.Errorf("metrics output does not contain processed counter:\n%s", body)
	}
}
