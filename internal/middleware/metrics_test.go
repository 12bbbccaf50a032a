package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"corsproxy/internal/metrics"
)

type sample struct {
	labels map[string]string
	count  float64
}

// gatherSamples returns every series of the named counter or histogram.
func gatherSamples(t *testing.T, m *metrics.Metrics, name string) []sample {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	var out []sample
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			s := sample{labels: make(map[string]string)}
			for _, lp := range metric.GetLabel() {
				s.labels[lp.GetName()] = lp.GetValue()
			}
			if c := metric.GetCounter(); c != nil {
				s.count = c.GetValue()
			}
			if h := metric.GetHistogram(); h != nil {
				s.count = float64(h.GetSampleCount())
			}
			out = append(out, s)
		}
	}
	return out
}

func findSample(samples []sample, want map[string]string) (sample, bool) {
	for _, s := range samples {
		ok := true
		for k, v := range want {
			if s.labels[k] != v {
				ok = false
				break
			}
		}
		if ok {
			return s, true
		}
	}
	return sample{}, false
}

func serveWithMetrics(m *metrics.Metrics, register func(e *echo.Echo), method, path string, skip ...string) *httptest.ResponseRecorder {
	e := echo.New()
	e.Use(MetricsMiddleware(m, skip...))
	if register != nil {
		register(e)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, path, http.NoBody))
	return rec
}

func TestMetricsMiddleware_RecordsRequest(t *testing.T) {
	m := metrics.New()
	rec := serveWithMetrics(m, func(e *echo.Echo) {
		e.GET("/proxy", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	}, http.MethodGet, "/proxy?url=https://allowed.test/")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	want := map[string]string{"method": "GET", "status_code": "200", "path_prefix": "/proxy"}
	s, ok := findSample(gatherSamples(t, m, "corsproxy_http_requests_total"), want)
	if !ok {
		t.Fatalf("no corsproxy_http_requests_total series with %v", want)
	}
	if s.count != 1 {
		t.Errorf("counter value = %v, want 1", s.count)
	}

	h, ok := findSample(gatherSamples(t, m, "corsproxy_http_request_duration_seconds"), want)
	if !ok {
		t.Fatalf("no corsproxy_http_request_duration_seconds series with %v", want)
	}
	if h.count != 1 {
		t.Errorf("histogram sample count = %v, want 1", h.count)
	}
}

func TestMetricsMiddleware_StatusResolution(t *testing.T) {
	tests := []struct {
		name    string
		handler echo.HandlerFunc
		want    string
	}{
		{
			name:    "http error",
			handler: func(echo.Context) error { return echo.NewHTTPError(http.StatusForbidden, "no") },
			want:    "403",
		},
		{
			name:    "plain error",
			handler: func(echo.Context) error { return errors.New("boom") },
			want:    "500",
		},
		{
			name:    "relayed upstream status",
			handler: func(c echo.Context) error { return c.NoContent(http.StatusBadGateway) },
			want:    "502",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New()
			serveWithMetrics(m, func(e *echo.Echo) { e.GET("/proxy", tt.handler) }, http.MethodGet, "/proxy")

			want := map[string]string{"path_prefix": "/proxy", "status_code": tt.want}
			if _, ok := findSample(gatherSamples(t, m, "corsproxy_http_requests_total"), want); !ok {
				t.Errorf("no series with %v", want)
			}
		})
	}
}

func TestMetricsMiddleware_UnknownMethodNormalized(t *testing.T) {
	m := metrics.New()
	serveWithMetrics(m, func(e *echo.Echo) {
		e.Any("/proxy", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	}, "XYZZY", "/proxy")

	want := map[string]string{"path_prefix": "/proxy", "method": "other"}
	if _, ok := findSample(gatherSamples(t, m, "corsproxy_http_requests_total"), want); !ok {
		t.Errorf("no series with %v", want)
	}
}

func TestMetricsMiddleware_RouterNotFound(t *testing.T) {
	m := metrics.New()
	rec := serveWithMetrics(m, nil, http.MethodGet, "/nonexistent")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	want := map[string]string{"path_prefix": "other", "method": "GET", "status_code": "404"}
	if _, ok := findSample(gatherSamples(t, m, "corsproxy_http_requests_total"), want); !ok {
		t.Errorf("no series with %v", want)
	}
}

func TestMetricsMiddleware_SkipPath(t *testing.T) {
	m := metrics.New()
	rec := serveWithMetrics(m, func(e *echo.Echo) {
		e.GET("/metrics", func(c echo.Context) error { return c.String(http.StatusOK, "# metrics") })
	}, http.MethodGet, "/metrics", "/metrics")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := gatherSamples(t, m, "corsproxy_http_requests_total"); len(got) != 0 {
		t.Errorf("scrape endpoint recorded: %v", got)
	}
}
