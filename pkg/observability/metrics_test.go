package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	t.Run("creates and registers all metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		if metrics == nil {
			t.Fatal("NewMetrics returned nil")
		}
		if metrics.ChecksTotal == nil {
			t.Error("ChecksTotal is nil")
		}
		if metrics.ConsumerMessagesTotal == nil {
			t.Error("ConsumerMessagesTotal is nil")
		}
		if metrics.DeadLetterDepth == nil {
			t.Error("DeadLetterDepth is nil")
		}
	})

	t.Run("panics on duplicate registration", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		NewMetrics(registry)

		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic on duplicate registration")
			}
		}()
		NewMetrics(registry)
	})
}

func TestMetrics_Recorders(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.RecordCheck(CheckResultAllow, time.Millisecond)
	m.RecordCheck(CheckResultDeny, time.Millisecond)
	m.RecordCheck(CheckResultDeny, time.Millisecond)
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordPopulation(StatusStale)
	m.RecordInvalidation(StatusOK)
	m.RecordPublish("permission.events", StatusError)
	m.RecordConsumed("q", OutcomeDeadLettered, time.Second)
	m.RecordRetry("q")
	m.RecordRetry("q")
	m.SetDeadLetterDepth("q.dlq", 7)
	m.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)

	if got := testutil.ToFloat64(m.ChecksTotal.WithLabelValues(CheckResultDeny)); got != 2 {
		t.Errorf("deny checks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("hit")); got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PopulationsTotal.WithLabelValues(StatusStale)); got != 1 {
		t.Errorf("stale populations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PublishTotal.WithLabelValues("permission.events", StatusError)); got != 1 {
		t.Errorf("publish errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ConsumerMessagesTotal.WithLabelValues("q", OutcomeDeadLettered)); got != 1 {
		t.Errorf("dead-lettered = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ConsumerRetriesTotal.WithLabelValues("q")); got != 2 {
		t.Errorf("retries = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.DeadLetterDepth.WithLabelValues("q.dlq")); got != 7 {
		t.Errorf("dlq depth = %v, want 7", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200")); got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	m.RecordCheck(CheckResultAllow, time.Millisecond)
	m.RecordCacheLookup(true)
	m.RecordPopulation(StatusOK)
	m.RecordInvalidation(StatusOK)
	m.RecordPublish("x", StatusOK)
	m.RecordConsumed("q", OutcomeAcked, time.Millisecond)
	m.RecordRetry("q")
	m.SetDeadLetterDepth("q", 1)
	m.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.RecordCheck(CheckResultAllow, time.Millisecond)

	server := httptest.NewServer(MetricsHandler(registry))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "permcache_checks_total") {
		t.Error("expected permcache_checks_total in metrics output")
	}
}
