package transport

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rhuss/routeway/pkg/debug"
	"github.com/rhuss/routeway/pkg/observability"
)

// maxRetryAfter caps how long a server-provided Retry-After may delay a retry.
const maxRetryAfter = 60 * time.Second

// RetryPolicy controls connection-level retries. Retries happen only before
// a response is handed to the caller, so a stream is never replayed once its
// body has started.
type RetryPolicy struct {
	// MaxRetries is the number of additional attempts. Zero disables retries.
	MaxRetries int

	// Statuses are the response codes that trigger a retry.
	Statuses []int

	// Methods are the HTTP methods eligible for retry.
	Methods []string

	// InitialInterval and MaxInterval bound the exponential backoff.
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		Statuses:        []int{429, 500, 502, 503, 504},
		Methods:         []string{http.MethodGet, http.MethodPost},
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
	}
}

type retryTransport struct {
	next     http.RoundTripper
	policy   RetryPolicy
	statuses map[int]bool
	methods  map[string]bool
}

// NewRetryTransport wraps next with policy. A policy with MaxRetries <= 0
// returns next unchanged.
func NewRetryTransport(next http.RoundTripper, policy RetryPolicy) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if policy.MaxRetries <= 0 {
		return next
	}
	t := &retryTransport{
		next:     next,
		policy:   policy,
		statuses: make(map[int]bool, len(policy.Statuses)),
		methods:  make(map[string]bool, len(policy.Methods)),
	}
	for _, s := range policy.Statuses {
		t.statuses[s] = true
	}
	for _, m := range policy.Methods {
		t.methods[strings.ToUpper(m)] = true
	}
	return t
}

func (t *retryTransport) newBackOff(req *http.Request) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if t.policy.InitialInterval > 0 {
		b.InitialInterval = t.policy.InitialInterval
	}
	if t.policy.MaxInterval > 0 {
		b.MaxInterval = t.policy.MaxInterval
	}
	b.MaxElapsedTime = 0
	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(t.policy.MaxRetries)), req.Context())
	bo.Reset()
	return bo
}

// RoundTrip implements http.RoundTripper.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.methods[req.Method] {
		return t.next.RoundTrip(req)
	}
	// A body that cannot be rewound cannot be resent.
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return t.next.RoundTrip(req)
	}

	ctx := req.Context()
	bo := t.newBackOff(req)

	for attempt := 0; ; attempt++ {
		r := req
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r = req.Clone(ctx)
			r.Body = body
		}

		resp, err := t.next.RoundTrip(r)
		reason, retry := t.shouldRetry(req, resp, err)
		if !retry {
			return resp, err
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return resp, err
		}
		if ra := retryAfter(resp); ra > wait {
			wait = ra
		}

		if resp != nil {
			io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
			resp.Body.Close()
		}

		observability.RetriesTotal.WithLabelValues(req.Method, reason).Inc()
		debug.Log("retry", "retrying request",
			"method", req.Method, "url", req.URL.String(),
			"attempt", attempt+1, "reason", reason, "wait", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (t *retryTransport) shouldRetry(req *http.Request, resp *http.Response, err error) (string, bool) {
	if err != nil {
		// Cancellation and deadlines belong to the caller.
		if req.Context().Err() != nil {
			return "", false
		}
		return "connection", true
	}
	if t.statuses[resp.StatusCode] {
		return "status_" + strconv.Itoa(resp.StatusCode), true
	}
	return "", false
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(v); err == nil {
		d = time.Until(at)
	}
	if d < 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}
