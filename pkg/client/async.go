package client

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/rhuss/routeway/pkg/api"
	"github.com/rhuss/routeway/pkg/request"
	"github.com/rhuss/routeway/pkg/stream"
	"github.com/rhuss/routeway/pkg/transport"
)

// Future is the pending result of an asynchronous call.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Go runs fn on a new goroutine and returns its Future.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.val, f.err = fn(ctx)
	}()
	return f
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the result is available or ctx ends. Giving up on
// the wait does not cancel the call; cancel the context passed to the
// call for that.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, transport.MapNetworkError(ctx, ctx.Err())
	}
}

// ChatCompletionAsync is the asynchronous form of ChatCompletion.
func (c *Client) ChatCompletionAsync(ctx context.Context, model string, messages []api.MessageParam, opts ...request.Option) *Future[*api.ChatCompletionResponse] {
	return Go(ctx, func(ctx context.Context) (*api.ChatCompletionResponse, error) {
		return c.ChatCompletion(ctx, model, messages, opts...)
	})
}

// ChatCompletionStreamAsync is the asynchronous form of
// ChatCompletionStream. The future resolves once the response headers
// arrive; the chunks are then read from the Stream as usual. A resolved
// Stream belongs to the caller even if Await gave up waiting on it.
func (c *Client) ChatCompletionStreamAsync(ctx context.Context, model string, messages []api.MessageParam, opts ...request.Option) *Future[*stream.Stream] {
	return Go(ctx, func(ctx context.Context) (*stream.Stream, error) {
		return c.ChatCompletionStream(ctx, model, messages, opts...)
	})
}

// CreateAsync is the asynchronous form of Create.
func (c *Client) CreateAsync(ctx context.Context, model string, messages []api.MessageParam, opts ...request.Option) *Future[*Completion] {
	return Go(ctx, func(ctx context.Context) (*Completion, error) {
		return c.Create(ctx, model, messages, opts...)
	})
}

// ListModelsAsync is the asynchronous form of ListModels.
func (c *Client) ListModelsAsync(ctx context.Context) *Future[*api.ModelList] {
	return Go(ctx, c.ListModels)
}

// RetrieveModelAsync is the asynchronous form of RetrieveModel.
func (c *Client) RetrieveModelAsync(ctx context.Context, id string) *Future[*api.Model] {
	return Go(ctx, func(ctx context.Context) (*api.Model, error) {
		return c.RetrieveModel(ctx, id)
	})
}

// ChatRequest is one element of a Gather fan-out.
type ChatRequest struct {
	Model    string
	Messages []api.MessageParam
	Options  []request.Option
}

// Gather sends all requests concurrently, at most limit at a time (limit
// <= 0 means no limit), and returns the responses in request order. The
// first failure cancels the requests still in flight and is returned.
func Gather(ctx context.Context, c *Client, limit int, reqs []ChatRequest) ([]*api.ChatCompletionResponse, error) {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	out := make([]*api.ChatCompletionResponse, len(reqs))
	for i, r := range reqs {
		g.Go(func() error {
			resp, err := c.ChatCompletion(gctx, r.Model, r.Messages, r.Options...)
			if err != nil {
				return err
			}
			out[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
