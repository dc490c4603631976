package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/finauth"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot finauth.MetricsSnapshot
}

func (f fakeSource) MetricsSnapshot() finauth.MetricsSnapshot { return f.snapshot }

func scrape(t *testing.T, h http.Handler) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return rec.Code, rec.Header().Get("Content-Type"), string(body)
}

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: finauth.MetricsSnapshot{
			Counters:   map[finauth.MetricID]uint64{},
			Histograms: map[finauth.MetricID][]uint64{},
		},
	})

	if n := testutil.CollectAndCount(exp); n != 0 {
		t.Fatalf("expected no metrics for disabled engine, got %d", n)
	}
}

func TestHandlerRendersCountersAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: finauth.MetricsSnapshot{
			Counters: map[finauth.MetricID]uint64{
				finauth.MetricSignInSuccess: 7,
				finauth.MetricAuditDropped:  2,
			},
			Histograms: map[finauth.MetricID][]uint64{
				finauth.MetricRefreshLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
	})

	code, contentType, out := scrape(t, exp.Handler())
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !strings.Contains(contentType, "text/plain") {
		t.Fatalf("expected prometheus text content type, got %q", contentType)
	}
	for _, want := range []string{
		"finauth_signin_success_total 7",
		`finauth_refresh_latency_seconds_bucket{le="0.005"} 1`,
		`finauth_refresh_latency_seconds_bucket{le="+Inf"} 36`,
		"finauth_refresh_latency_seconds_count 36",
		"finauth_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "finauth_signin_latency_seconds_bucket") {
		t.Fatalf("histograms absent from the snapshot must not be rendered:\n%s", out)
	}
}

func TestCollectorPassesLint(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: finauth.MetricsSnapshot{
			Counters: map[finauth.MetricID]uint64{finauth.MetricRefreshSuccess: 1},
		},
	})
	problems, err := testutil.CollectAndLint(exp)
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(problems) != 0 {
		t.Fatalf("unexpected lint problems: %+v", problems)
	}
}
