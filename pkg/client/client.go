package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/rhuss/routeway/pkg/api"
	"github.com/rhuss/routeway/pkg/auth"
	"github.com/rhuss/routeway/pkg/auth/jwt"
	"github.com/rhuss/routeway/pkg/config"
	"github.com/rhuss/routeway/pkg/observability"
	"github.com/rhuss/routeway/pkg/request"
	"github.com/rhuss/routeway/pkg/storage"
	"github.com/rhuss/routeway/pkg/stream"
	"github.com/rhuss/routeway/pkg/transport"
)

const (
	pathChatCompletions = "chat/completions"
	pathModels          = "models"
)

// Client calls a chat completion API. It is safe for concurrent use.
// Close releases the connection pool.
type Client struct {
	adapter  *transport.Adapter
	logger   *slog.Logger
	recorder storage.TranscriptStore

	closeOnce sync.Once
}

// New creates a Client. The credential comes from WithCredential,
// WithAPIKey or the ROUTEWAY_API_KEY environment variable, in that order;
// without one New fails with an Auth error and no client is returned.
func New(opts ...Option) (*Client, error) {
	s := defaultSettings()
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return newClient(s)
}

// NewFromConfig creates a Client from loaded configuration. opts are
// applied after the configuration and win over it.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Client, error) {
	s := defaultSettings()
	cc := cfg.Client

	s.apiKey = cc.APIKey
	s.transport.BaseURL = cc.BaseURL
	s.transport.Timeout = cc.Timeout
	s.transport.UserAgent = cc.UserAgent
	s.transport.Headers = cc.HTTPHeaders()
	s.transport.Retry = transport.RetryPolicy{
		MaxRetries:      cc.Retry.MaxRetries,
		Statuses:        cc.Retry.Statuses,
		Methods:         cc.Retry.Methods,
		InitialInterval: cc.Retry.InitialInterval,
		MaxInterval:     cc.Retry.MaxInterval,
	}

	if cc.JWT.Secret != "" {
		src, err := jwt.New(jwt.Config{
			Secret:   []byte(cc.JWT.Secret),
			Issuer:   cc.JWT.Issuer,
			Subject:  cc.JWT.Subject,
			Audience: cc.JWT.Audience,
			TTL:      cc.JWT.TTL,
		})
		if err != nil {
			return nil, err
		}
		s.cred = src
	}

	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return newClient(s)
}

func newClient(s settings) (*Client, error) {
	cred := s.cred
	if cred == nil {
		resolved, err := auth.Resolve(s.apiKey)
		if err != nil {
			return nil, err
		}
		cred = resolved
	}

	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}
	s.transport.Logger = logger

	adapter, err := transport.New(cred, s.transport)
	if err != nil {
		return nil, err
	}

	return &Client{
		adapter:  adapter,
		logger:   logger,
		recorder: s.recorder,
	}, nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.adapter.BaseURL()
}

// Completion is the result of Create. Exactly one of Response and Stream
// is set, depending on whether a streamed response was requested.
type Completion struct {
	Response *api.ChatCompletionResponse
	Stream   *stream.Stream
}

// Streaming reports whether the completion is a stream.
func (c *Completion) Streaming() bool {
	return c.Stream != nil
}

// Create sends a chat completion and dispatches on the stream flag: with
// request.WithStream the result carries a Stream, otherwise a Response.
func (c *Client) Create(ctx context.Context, model string, messages []api.MessageParam, opts ...request.Option) (*Completion, error) {
	p, err := request.Build(model, messages, opts...)
	if err != nil {
		return nil, err
	}
	if p.Stream() {
		s, err := c.openStream(ctx, p)
		if err != nil {
			return nil, err
		}
		return &Completion{Stream: s}, nil
	}
	resp, err := c.complete(ctx, p)
	if err != nil {
		return nil, err
	}
	return &Completion{Response: resp}, nil
}

// ChatCompletion sends a non-streaming chat completion and returns the
// decoded response. Requesting a stream here is a Validation error; use
// ChatCompletionStream instead.
func (c *Client) ChatCompletion(ctx context.Context, model string, messages []api.MessageParam, opts ...request.Option) (*api.ChatCompletionResponse, error) {
	o := request.Apply(opts...)
	if o.Stream {
		return nil, api.NewValidationError("stream", "Streaming requested; use ChatCompletionStream")
	}
	p, err := request.BuildWith(model, messages, o)
	if err != nil {
		return nil, err
	}
	return c.complete(ctx, p)
}

// ChatCompletionStream sends a streamed chat completion. The caller must
// consume the stream to its end or Close it.
func (c *Client) ChatCompletionStream(ctx context.Context, model string, messages []api.MessageParam, opts ...request.Option) (*stream.Stream, error) {
	o := request.Apply(opts...)
	o.Stream = true
	p, err := request.BuildWith(model, messages, o)
	if err != nil {
		return nil, err
	}
	return c.openStream(ctx, p)
}

func (c *Client) complete(ctx context.Context, p request.Payload) (*api.ChatCompletionResponse, error) {
	body, err := encodePayload(p)
	if err != nil {
		return nil, err
	}

	resp, err := c.adapter.Send(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   pathChatCompletions,
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	status := resp.StatusCode

	var out api.ChatCompletionResponse
	if err := transport.DecodeJSON(ctx, resp, &out); err != nil {
		return nil, err
	}

	if out.Usage != nil {
		observability.RecordUsage(p.Model(), out.Usage.PromptTokens, out.Usage.CompletionTokens, out.Usage.ReasoningTokens)
	}
	c.record(ctx, &storage.Transcript{
		Model:      p.Model(),
		Request:    body,
		Response:   out.RawJSON(),
		StatusCode: status,
	})
	return &out, nil
}

func (c *Client) openStream(ctx context.Context, p request.Payload) (*stream.Stream, error) {
	body, err := encodePayload(p)
	if err != nil {
		return nil, err
	}

	resp, err := c.adapter.Send(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   pathChatCompletions,
		Body:   body,
		Stream: true,
	})
	if err != nil {
		return nil, err
	}
	status := resp.StatusCode
	model := p.Model()

	return stream.New(ctx, resp.Body,
		stream.WithLogger(c.logger),
		stream.OnComplete(func(raw []json.RawMessage) {
			recordStreamUsage(model, raw)
			c.record(ctx, &storage.Transcript{
				Model:      model,
				Stream:     true,
				Request:    body,
				Chunks:     raw,
				StatusCode: status,
			})
		}),
	), nil
}

// ListModels returns the models available to the credential.
func (c *Client) ListModels(ctx context.Context) (*api.ModelList, error) {
	resp, err := c.adapter.Send(ctx, transport.Request{Method: http.MethodGet, Path: pathModels})
	if err != nil {
		return nil, err
	}
	var out api.ModelList
	if err := transport.DecodeJSON(ctx, resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetrieveModel returns the metadata of one model.
func (c *Client) RetrieveModel(ctx context.Context, id string) (*api.Model, error) {
	if strings.TrimSpace(id) == "" {
		return nil, api.NewValidationError("model", "Model ID must be non-empty string")
	}
	resp, err := c.adapter.Send(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   pathModels + "/" + url.PathEscape(id),
	})
	if err != nil {
		return nil, err
	}
	var out api.Model
	if err := transport.DecodeJSON(ctx, resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Close releases the client's connection pool. Calls made after Close fail
// with a Connection error. Close is idempotent and never fails.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.adapter.Close()
		c.logger.Debug("client closed", slog.String("base_url", c.adapter.BaseURL()))
	})
	return nil
}

func encodePayload(p request.Payload) ([]byte, error) {
	body, err := p.JSON()
	if err != nil {
		e := api.NewValidationError("", "Request payload is not JSON serializable: "+err.Error())
		e.Cause = err
		return nil, e
	}
	return body, nil
}
