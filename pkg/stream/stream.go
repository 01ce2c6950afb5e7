// Package stream decodes a server-sent chat completion stream into typed
// chunks.
//
// The wire format is line oriented:
//
//	data: {"id":"...","choices":[...]}\n
//	\n
//	data: [DONE]\n
//
// Lines end in LF, CRLF or a lone CR.
// Blank lines separate events, lines without the "data: " prefix (comments,
// keep-alives, event names) are ignored, and a payload of exactly [DONE]
// ends the stream. A payload that is not a JSON object is logged, counted
// and skipped; it never aborts the stream.
//
// A Stream is pulled with Recv, ranged over with All, or pumped onto a
// channel with Channel. All three drive the same state machine. The
// response body is released exactly once: when the sentinel is seen, when
// the underlying read fails, or when the consumer calls Close.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rhuss/routeway/pkg/api"
	"github.com/rhuss/routeway/pkg/debug"
	"github.com/rhuss/routeway/pkg/observability"
)

const (
	dataPrefix = "data: "
	sentinel   = "[DONE]"

	maxLineSize = 32 << 20
)

// Stream is a lazy, forward-only sequence of chunks read from a response
// body. Recv must not be called concurrently; Close may be called from any
// goroutine.
type Stream struct {
	ctx    context.Context
	body   io.ReadCloser
	sc     *bufio.Scanner
	logger *slog.Logger

	// err is sticky: io.EOF after normal termination, an *api.Error after
	// a failed read.
	err error

	chunks  atomic.Int64
	skipped atomic.Int64

	keepRaw    bool
	raw        []json.RawMessage
	onComplete func([]json.RawMessage)

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Stream.
type Option func(*Stream)

// WithLogger sets the logger used for malformed-chunk warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stream) {
		if l != nil {
			s.logger = l
		}
	}
}

// OnComplete registers fn to run with the raw JSON of every decoded chunk
// once the sentinel is reached. It does not run for streams that fail or
// are closed early.
func OnComplete(fn func(raw []json.RawMessage)) Option {
	return func(s *Stream) {
		s.onComplete = fn
		s.keepRaw = fn != nil
	}
}

// New wraps body. The Stream takes over releasing body; ctx is the context
// the request was made with and is only used to classify read failures.
func New(ctx context.Context, body io.ReadCloser, opts ...Option) *Stream {
	if ctx == nil {
		ctx = context.Background()
	}
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	sc.Split(scanLines())

	s := &Stream{
		ctx:    ctx,
		body:   body,
		sc:     sc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	observability.StreamsActive.Inc()
	return s
}

// Recv returns the next chunk. It returns io.EOF once the stream has ended
// normally (sentinel, end of body, or Close). Any other error is an
// *api.Error of kind Stream or Timeout and is returned again by every
// later call.
func (s *Stream) Recv() (*api.ChatCompletionChunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.closed.Load() {
		s.err = io.EOF
		return nil, s.err
	}

	for {
		if !s.sc.Scan() {
			readErr := s.sc.Err()
			if readErr == nil {
				readErr = io.EOF
			}
			s.finish(s.readError(readErr), false)
			return nil, s.err
		}

		chunk, done := s.decodeLine(s.sc.Bytes())
		if done {
			s.finish(io.EOF, true)
			return nil, io.EOF
		}
		if chunk != nil {
			return chunk, nil
		}
	}
}

// scanLines splits on LF, CRLF and a lone CR. A line ending in CR is
// returned as soon as the CR arrives; a following LF is dropped.
func scanLines() bufio.SplitFunc {
	var afterCR bool
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if afterCR && len(data) > 0 {
			afterCR = false
			if data[0] == '\n' {
				return 1, nil, nil
			}
		}
		if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
			afterCR = data[i] == '\r'
			return i + 1, data[:i], nil
		}
		if atEOF && len(data) > 0 {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}

// decodeLine runs one line through the event state machine. It returns the
// decoded chunk, or done=true when the line carries the sentinel. Ignored
// and malformed lines return (nil, false).
func (s *Stream) decodeLine(line []byte) (*api.ChatCompletionChunk, bool) {
	if len(line) == 0 {
		return nil, false
	}
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		debug.Trace("streaming", "ignoring non-data line", "line", debug.Truncate(string(line), 200))
		return nil, false
	}

	payload := line[len(dataPrefix):]
	if string(payload) == sentinel {
		return nil, true
	}

	chunk, err := decodeChunk(payload)
	if err != nil {
		s.skipped.Add(1)
		observability.StreamMalformedTotal.Inc()
		s.logger.Warn("skipping malformed stream chunk",
			"error", err.Error(),
			"data", debug.Truncate(string(payload), 200),
		)
		return nil, false
	}

	n := s.chunks.Add(1)
	observability.StreamChunksTotal.Inc()
	if chunk.Usage != nil {
		observability.RecordUsage(chunk.Model, chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens, chunk.Usage.ReasoningTokens)
	}
	if s.keepRaw {
		s.raw = append(s.raw, chunk.RawJSON())
	}
	debug.Log("streaming", "chunk", "index", n, "id", chunk.ID)
	return chunk, false
}

var errNotObject = errors.New("payload is not a JSON object")

func decodeChunk(payload []byte) (*api.ChatCompletionChunk, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errNotObject
	}
	var chunk api.ChatCompletionChunk
	if err := json.Unmarshal(trimmed, &chunk); err != nil {
		return nil, err
	}
	return &chunk, nil
}

// readError classifies a failed body read.
func (s *Stream) readError(err error) error {
	if errors.Is(err, io.EOF) || s.closed.Load() {
		return io.EOF
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(context.Cause(s.ctx), context.DeadlineExceeded) {
		return api.NewTimeoutError("", err)
	}
	return api.NewStreamError("Stream read failed: "+err.Error(), err)
}

// finish moves the stream to its terminal state and releases the body.
func (s *Stream) finish(err error, complete bool) {
	s.err = err
	s.Close()
	debug.Log("streaming", "stream finished", "chunks", s.chunks.Load(), "skipped", s.skipped.Load(), "complete", complete)
	if complete && s.onComplete != nil {
		s.onComplete(s.raw)
	}
}

// Close releases the response body. It is safe to call more than once and
// from any goroutine; only the first call closes the body.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.body.Close()
		observability.StreamsActive.Dec()
	})
	return s.closeErr
}

// Skipped returns how many malformed events have been dropped so far. It
// may be called while another goroutine is reading the stream.
func (s *Stream) Skipped() int {
	return int(s.skipped.Load())
}

// Count returns how many chunks have been decoded so far.
func (s *Stream) Count() int {
	return int(s.chunks.Load())
}

// All returns an iterator over the remaining chunks. Breaking out of the
// loop closes the stream. A terminal error is yielded once with a nil
// chunk; normal termination simply ends the loop.
func (s *Stream) All() iter.Seq2[*api.ChatCompletionChunk, error] {
	return func(yield func(*api.ChatCompletionChunk, error) bool) {
		defer s.Close()
		for {
			chunk, err := s.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// Result is one element delivered by Channel.
type Result struct {
	Chunk *api.ChatCompletionChunk
	Err   error
}

// Channel pumps the stream from a new goroutine. The channel is closed
// after the last chunk or after a single Result carrying the terminal
// error. Cancelling ctx closes the stream and stops the goroutine.
func (s *Stream) Channel(ctx context.Context) <-chan Result {
	ch := make(chan Result)
	go func() {
		defer close(ch)
		defer s.Close()
		stop := context.AfterFunc(ctx, func() { s.Close() })
		defer stop()

		for {
			chunk, err := s.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			res := Result{Chunk: chunk, Err: err}
			select {
			case ch <- res:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}

// Collect drains the stream into a slice, closing it on return.
func (s *Stream) Collect() ([]*api.ChatCompletionChunk, error) {
	var out []*api.ChatCompletionChunk
	for chunk, err := range s.All() {
		if err != nil {
			return out, err
		}
		out = append(out, chunk)
	}
	return out, nil
}
