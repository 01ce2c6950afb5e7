package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rhuss/routeway/pkg/auth"
	"github.com/rhuss/routeway/pkg/storage"
	"github.com/rhuss/routeway/pkg/transport"
)

// settings collects everything supplied at construction.
type settings struct {
	apiKey    string
	cred      auth.Credential
	transport transport.Config
	logger    *slog.Logger
	recorder  storage.TranscriptStore
}

func defaultSettings() settings {
	return settings{
		transport: transport.Config{
			BaseURL: transport.DefaultBaseURL,
			Retry:   transport.DefaultRetryPolicy(),
		},
	}
}

// Option configures a Client.
type Option func(*settings)

// WithAPIKey sets the bearer credential. It takes precedence over the
// ROUTEWAY_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(s *settings) { s.apiKey = key }
}

// WithCredential sets a credential source such as a JWT minter. It takes
// precedence over WithAPIKey.
func WithCredential(c auth.Credential) Option {
	return func(s *settings) { s.cred = c }
}

// WithBaseURL sets the API root, e.g. "https://api.routeway.ai/v1".
func WithBaseURL(u string) Option {
	return func(s *settings) { s.transport.BaseURL = u }
}

// WithTimeout bounds non-streaming requests end to end and streaming
// requests until their headers arrive. Zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.transport.Timeout = d }
}

// WithMaxRetries sets the number of transport-level retries. Zero disables
// retrying.
func WithMaxRetries(n int) Option {
	return func(s *settings) { s.transport.Retry.MaxRetries = n }
}

// WithRetryPolicy replaces the whole retry policy.
func WithRetryPolicy(p transport.RetryPolicy) Option {
	return func(s *settings) { s.transport.Retry = p }
}

// WithHeaders adds default headers sent with every request.
func WithHeaders(h http.Header) Option {
	return func(s *settings) {
		if s.transport.Headers == nil {
			s.transport.Headers = make(http.Header)
		}
		for k, vs := range h {
			for _, v := range vs {
				s.transport.Headers.Add(k, v)
			}
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *settings) { s.transport.UserAgent = ua }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithRecorder records every completed exchange in store. The client does
// not close the store.
func WithRecorder(store storage.TranscriptStore) Option {
	return func(s *settings) { s.recorder = store }
}

// WithHTTPTransport sets the round tripper underneath the retry and
// instrumentation layers.
func WithHTTPTransport(rt http.RoundTripper) Option {
	return func(s *settings) { s.transport.Base = rt }
}
