package monitor

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/coachpo/atomictrader/internal/infra/report"
)

func testSources() Sources {
	now := time.Now()
	return Sources{
		Status: func() Status {
			return Status{
				Mode:             "Trade",
				ModeName:         "Trading",
				ReportingEnabled: true,
				VenueConnected:   true,
				ClockServer:      "pool.ntp.org",
				ClockOffset:      "3ms",
				ClockSyncedAt:    &now,
			}
		},
		Reports: func() []report.Record {
			return []report.Record{
				{ID: "1", Source: "dispatcher", Severity: report.SeverityInfo, Message: "Running mode changed from: Idle to: Trading"},
				{ID: "2", Source: "dispatcher", Severity: report.SeverityError, Message: "listener failed", Code: "listener"},
				{ID: "3", Source: "dispatcher", Severity: report.SeverityInfo, Message: "Running mode changed from: Trading to: Idle"},
			}
		},
	}
}

func TestStatusRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(testSources()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body Status
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if body.Mode != "Trade" || !body.VenueConnected || body.Strategies == nil {
		t.Fatalf("unexpected status payload: %+v", body)
	}
}

func TestStatusUnavailableWithoutSource(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(Sources{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestStrategiesRoute(t *testing.T) {
	sources := testSources()
	sources.Catalog = func() any {
		return []map[string]string{{"name": "delay"}, {"name": "noop"}}
	}
	rec := httptest.NewRecorder()
	NewHandler(sources).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/strategies", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Strategies []struct {
			Name string `json:"name"`
		} `json:"strategies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	if len(body.Strategies) != 2 || body.Strategies[0].Name != "delay" {
		t.Fatalf("unexpected catalog payload: %s", rec.Body.String())
	}
}

func TestStrategiesUnavailableWithoutSource(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(testSources()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/strategies", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestReportsRouteFiltersAndLimits(t *testing.T) {
	handler := NewHandler(testSources())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports?severity=error", nil))
	var body struct {
		Reports []report.Record `json:"reports"`
		Count   int             `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode reports: %v", err)
	}
	if body.Count != 1 || body.Reports[0].ID != "2" {
		t.Fatalf("expected only the error record, got %+v", body)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports?limit=2", nil))
	body.Reports = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode reports: %v", err)
	}
	if body.Count != 2 || body.Reports[0].ID != "2" || body.Reports[1].ID != "3" {
		t.Fatalf("expected newest two records, got %+v", body)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports?limit=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid limit, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(testSources()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodGet {
		t.Fatalf("unexpected Allow header %q", allow)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	srv := New("127.0.0.1:0", testSources())
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	addr := srv.Addr()
	if err := srv.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if srv.Addr() != addr {
		t.Fatalf("expected same listener, got %s and %s", addr, srv.Addr())
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestStartFailureCanBeRetried(t *testing.T) {
	blocker, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := blocker.Addr().String()

	srv := New(addr, testSources())
	if err := srv.Start(); err == nil {
		t.Fatalf("expected bind failure while address is taken")
	}
	_ = blocker.Close()
	if err := srv.Start(); err != nil {
		t.Fatalf("retry start: %v", err)
	}
	_ = srv.Shutdown(context.Background())
}
