package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rhuss/routeway/pkg/api"
	"github.com/rhuss/routeway/pkg/auth"
	"github.com/rhuss/routeway/pkg/debug"
	"github.com/rhuss/routeway/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.routeway.ai/v1"

// DefaultUserAgent identifies the client on the wire.
const DefaultUserAgent = "routeway-go/1.0"

// HeaderRequestID carries a per-request correlation id.
const HeaderRequestID = "X-Request-ID"

// Config holds the adapter configuration, supplied once at construction.
type Config struct {
	// BaseURL is the API root. Default: DefaultBaseURL.
	BaseURL string

	// Timeout bounds a non-streaming request end to end and a streaming
	// request until its response headers arrive. Zero means no limit.
	Timeout time.Duration

	// Retry is the connection-level retry policy.
	Retry RetryPolicy

	// Headers are sent with every request. They win over the adapter's
	// defaults except Authorization, which is always set from the credential.
	Headers http.Header

	// UserAgent overrides DefaultUserAgent.
	UserAgent string

	// Base is the underlying round tripper. If nil, a clone of
	// http.DefaultTransport is used so that no pool is shared between
	// adapters.
	Base http.RoundTripper

	// Logger receives request-level log entries. Default: slog.Default().
	Logger *slog.Logger
}

// Request describes a single API call.
type Request struct {
	Method string
	Path   string
	Body   []byte

	// Stream marks a request whose body is consumed incrementally.
	Stream bool

	// Header holds per-call headers, applied after Config.Headers.
	Header http.Header
}

// Adapter sends authenticated requests and maps failures to *api.Error.
// One Adapter owns one connection pool; Close releases it.
type Adapter struct {
	base         *url.URL
	cred         auth.Credential
	headers      http.Header
	userAgent    string
	timeout      time.Duration
	client       *http.Client
	streamClient *http.Client
	pool         http.RoundTripper
	logger       *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates an Adapter. The credential is required.
func New(cred auth.Credential, cfg Config) (*Adapter, error) {
	if cred == nil {
		return nil, api.NewAuthError("API key required. Set " + auth.EnvAPIKey + " or pass an API key.")
	}

	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, api.NewValidationError("base_url", "Base URL must be an absolute URL")
	}

	pool := cfg.Base
	if pool == nil {
		pool = http.DefaultTransport.(*http.Transport).Clone()
	}

	rt := NewRetryTransport(
		observability.InstrumentRoundTripper(otelhttp.NewTransport(pool)),
		cfg.Retry,
	)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	return &Adapter{
		base:      base,
		cred:      cred,
		headers:   cfg.Headers.Clone(),
		userAgent: ua,
		timeout:   cfg.Timeout,
		client: &http.Client{
			Transport: rt,
			Timeout:   cfg.Timeout,
		},
		// No client timeout for streaming. A stream can legitimately last
		// longer than any fixed timeout; the context controls its lifetime.
		streamClient: &http.Client{Transport: rt},
		pool:         pool,
		logger:       logger,
	}, nil
}

// BaseURL returns the configured API root.
func (a *Adapter) BaseURL() string {
	return a.base.String()
}

// Send performs req and returns the response on 2xx. Any other status is
// returned as an *api.Error after the body has been read and closed. The
// caller owns the body of a successful response.
func (a *Adapter) Send(ctx context.Context, req Request) (*http.Response, error) {
	if a.closed.Load() {
		return nil, api.NewConnectionError("Client is closed", nil)
	}

	token, err := a.cred.Token(ctx)
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, &api.Error{Kind: api.KindAuth, Message: err.Error(), Cause: err}
	}

	// Streams get a header-phase deadline that is lifted once the response
	// arrives. The derived context lives as long as the body.
	var cancel context.CancelCauseFunc
	var timer *time.Timer
	if req.Stream {
		ctx, cancel = context.WithCancelCause(ctx)
		if a.timeout > 0 {
			timer = time.AfterFunc(a.timeout, func() { cancel(context.DeadlineExceeded) })
		}
	}
	release := func() {
		if timer != nil {
			timer.Stop()
		}
		if cancel != nil {
			cancel(context.Canceled)
		}
	}

	httpReq, err := a.newRequest(ctx, req, token)
	if err != nil {
		release()
		return nil, err
	}

	start := time.Now()
	client := a.client
	if req.Stream {
		client = a.streamClient
	}

	resp, err := client.Do(httpReq)
	if timer != nil {
		timer.Stop()
	}
	if err != nil {
		mapped := MapNetworkError(ctx, err)
		release()
		a.logger.Debug("request failed",
			slog.String("method", req.Method),
			slog.String("url", httpReq.URL.String()),
			slog.String("request_id", httpReq.Header.Get(HeaderRequestID)),
			slog.String("error", mapped.Error()),
		)
		return nil, mapped
	}

	debug.Log("transport", "response",
		"method", req.Method,
		"url", httpReq.URL.String(),
		"status", resp.StatusCode,
		"request_id", httpReq.Header.Get(HeaderRequestID),
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := MapHTTPError(resp)
		resp.Body.Close()
		release()
		return nil, apiErr
	}

	if cancel != nil {
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: release}
	}
	return resp, nil
}

func (a *Adapter) newRequest(ctx context.Context, req Request, token string) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, a.endpoint(req.Path), body)
	if err != nil {
		return nil, api.NewValidationError("path", "Invalid request URL: "+err.Error())
	}

	h := httpReq.Header
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", a.userAgent)
	if req.Stream {
		h.Set("Accept", "text/event-stream")
	} else {
		h.Set("Accept", "application/json")
	}
	for k, vs := range a.headers {
		h[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	for k, vs := range req.Header {
		h[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	if h.Get(HeaderRequestID) == "" {
		h.Set(HeaderRequestID, uuid.NewString())
	}
	h.Set("Authorization", auth.BearerHeader(token))

	if debug.TraceIsEnabled("transport") {
		debug.Raw("transport", method+" "+httpReq.URL.String()+"\n"+string(req.Body))
	}
	return httpReq, nil
}

func (a *Adapter) endpoint(path string) string {
	return a.base.String() + "/" + strings.TrimLeft(path, "/")
}

// DecodeJSON reads and closes a successful response body and decodes it
// into out. Read failures map like transport failures; an undecodable body
// is an HTTP error carrying the response status.
func DecodeJSON(ctx context.Context, resp *http.Response, out any) error {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return MapNetworkError(ctx, err)
	}
	debug.Raw("transport", string(data))

	if err := json.Unmarshal(data, out); err != nil {
		e := api.NewHTTPError("Invalid JSON in response body", resp.StatusCode)
		e.Cause = err
		return e
	}
	return nil
}

// Close releases idle pooled connections. Subsequent calls to Send fail
// with a Connection error. Close is idempotent.
func (a *Adapter) Close() error {
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		a.client.CloseIdleConnections()
		if ci, ok := a.pool.(interface{ CloseIdleConnections() }); ok {
			ci.CloseIdleConnections()
		}
	})
	return nil
}

// Closed reports whether Close has been called.
func (a *Adapter) Closed() bool {
	return a.closed.Load()
}

// cancelOnClose releases the stream context when the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel func()
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
