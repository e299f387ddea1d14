package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgerdesk/ledgerdesk/internal/config"
)

func TestNewLogger_FallsBackOnUnknownLevel(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"json", "console"} {
		logger, err := NewLogger(config.LoggerConfig{Level: "loud", Format: format, Service: "ledgerdesk"})
		if err != nil {
			t.Fatalf("%s: expected logger, got %v", format, err)
		}
		if !logger.Core().Enabled(0) || logger.Core().Enabled(-1) {
			t.Fatalf("%s: expected info level", format)
		}
	}
}

func TestMetrics_Snapshot(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.RecordRequest("/tickets", "GET", 200, 10*time.Millisecond)
	m.RecordRequest("/tickets", "GET", 200, 30*time.Millisecond)
	m.RecordError("/tickets/1", "POST", "STALE_STATE")
	m.RecordTransition("assign", "accepted")
	m.RecordReconcile("stale")

	snap := m.Snapshot()
	if snap.Requests["/tickets|GET|200"] != 2 {
		t.Fatalf("expected 2 requests, got %v", snap.Requests)
	}
	if snap.LatencyMillis["/tickets|GET|200"] != 20 {
		t.Fatalf("expected 20ms mean latency, got %v", snap.LatencyMillis)
	}
	if snap.Errors["/tickets/1|POST|STALE_STATE"] != 1 {
		t.Fatalf("expected error counted, got %v", snap.Errors)
	}
	if len(snap.Transitions) != 1 || len(snap.Reconciliation) != 1 {
		t.Fatalf("expected transition and reconcile counters, got %+v", snap)
	}

	var nilMetrics *Metrics
	nilMetrics.RecordRequest("/", "GET", 200, time.Millisecond)
	if got := nilMetrics.Snapshot(); len(got.Requests) != 0 {
		t.Fatalf("expected empty snapshot from nil metrics")
	}
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	app := fiber.New()
	app.Use(RequestLogger(nil, m))
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.Header.Get(RequestIDHeader) != "abc" {
		t.Fatalf("expected request id echoed, got %q", resp.Header.Get(RequestIDHeader))
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/ping", nil))
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
	if m.Snapshot().Requests["/ping|GET|200"] != 2 {
		t.Fatalf("expected two recorded requests, got %v", m.Snapshot().Requests)
	}
}
