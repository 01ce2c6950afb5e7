package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// InstrumentRoundTripper wraps next to record request metrics.
//
// It captures:
//   - routeway_requests_total (counter): one per exchange with method, endpoint and status class labels
//   - routeway_request_duration_seconds (histogram): time until response headers arrive
func InstrumentRoundTripper(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		start := time.Now()
		endpoint := Endpoint(r.URL.Path)

		resp, err := next.RoundTrip(r)

		RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		status := "error"
		if err == nil {
			status = strconv.Itoa(resp.StatusCode/100) + "xx"
		}
		RequestsTotal.WithLabelValues(r.Method, endpoint, status).Inc()
		return resp, err
	})
}

// Endpoint reduces a request path to a low-cardinality label. Model ids
// under /models/ are collapsed.
func Endpoint(path string) string {
	switch {
	case strings.HasSuffix(path, "/chat/completions"):
		return "chat_completions"
	case strings.HasSuffix(path, "/models"):
		return "models"
	case strings.Contains(path, "/models/"):
		return "model"
	default:
		return "other"
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
