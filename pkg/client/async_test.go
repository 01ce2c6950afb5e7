package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rhuss/routeway/pkg/api"
	"github.com/rhuss/routeway/pkg/request"
	"github.com/rhuss/routeway/pkg/stream"
)

func TestChatCompletionAsync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, helloResponse)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	f := c.ChatCompletionAsync(ctx, "m", userHi())
	resp, err := f.Await(ctx)
	if err != nil {
		t.Fatalf("Await() error: %v", err)
	}
	if resp.Choices[0].Message.Content != "hello" {
		t.Errorf("content = %q", resp.Choices[0].Message.Content)
	}
	select {
	case <-f.Done():
	default:
		t.Error("Done() should be closed after Await returned")
	}

	// Await can be called again and returns the same result.
	again, err := f.Await(ctx)
	if err != nil || again != resp {
		t.Errorf("second Await() = %p, %v", again, err)
	}
}

func TestChatCompletionStreamAsync(t *testing.T) {
	srv := httptest.NewServer(sseHandler(
		"data: {\"id\":\"s\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hel\"}}]}\n\n",
		"data: {\"id\":\"s\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"},\"finish_reason\":\"stop\"}]}\n\n",
		"data: [DONE]\n\n",
	))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	s, err := c.ChatCompletionStreamAsync(ctx, "m", userHi()).Await(ctx)
	if err != nil {
		t.Fatalf("Await() error: %v", err)
	}
	acc, err := stream.Accumulate(s)
	if err != nil {
		t.Fatalf("Accumulate() error: %v", err)
	}
	if got := acc.Message().Content; got != "Hello" {
		t.Errorf("content = %q, want Hello", got)
	}
	if acc.FinishReason() != "stop" {
		t.Errorf("finish reason = %q", acc.FinishReason())
	}
	if _, err := s.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("Recv() after [DONE] = %v, want io.EOF", err)
	}
}

func TestChatCompletionStreamAsync_EarlyClose(t *testing.T) {
	gone := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"id\":\"first\",\"choices\":[]}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(gone)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	s, err := c.ChatCompletionStreamAsync(ctx, "m", userHi()).Await(ctx)
	if err != nil {
		t.Fatalf("Await() error: %v", err)
	}
	chunk, err := s.Recv()
	if err != nil || chunk.ID != "first" {
		t.Fatalf("Recv() = %v, %v", chunk, err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if _, err := s.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("Recv() after Close = %v, want io.EOF", err)
	}

	select {
	case <-gone:
	case <-time.After(5 * time.Second):
		t.Fatal("server still writing after the stream was closed")
	}
}

func TestCreateAsync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["stream"] == true {
			sseHandler("data: {\"id\":\"c\",\"choices\":[]}\n", "data: [DONE]\n")(w, r)
			return
		}
		io.WriteString(w, helloResponse)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	single := c.CreateAsync(ctx, "m", userHi())
	streamed := c.CreateAsync(ctx, "m", userHi(), request.WithStream())

	got, err := single.Await(ctx)
	if err != nil || got.Streaming() || got.Response.ID != "x" {
		t.Fatalf("blocking completion = %+v, %v", got, err)
	}
	got, err = streamed.Await(ctx)
	if err != nil || !got.Streaming() {
		t.Fatalf("streamed completion = %+v, %v", got, err)
	}
	chunks, err := got.Stream.Collect()
	if err != nil || len(chunks) != 1 || chunks[0].ID != "c" {
		t.Errorf("Collect() = %d chunks, %v", len(chunks), err)
	}
}

func TestListModelsAsync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			io.WriteString(w, `{"object":"list","data":[{"id":"a"},{"id":"b"}]}`)
			return
		}
		io.WriteString(w, `{"id":"a","object":"model"}`)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	lf := c.ListModelsAsync(ctx)
	mf := c.RetrieveModelAsync(ctx, "a")

	list, err := lf.Await(ctx)
	if err != nil || len(list.Data) != 2 {
		t.Errorf("ListModelsAsync = %+v, %v", list, err)
	}
	m, err := mf.Await(ctx)
	if err != nil || m.ID != "a" {
		t.Errorf("RetrieveModelAsync = %+v, %v", m, err)
	}
}

func TestFuture_AwaitDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		io.WriteString(w, helloResponse)
	}))
	defer srv.Close()
	defer close(release)
	c := newTestClient(t, srv.URL)

	f := c.ChatCompletionAsync(context.Background(), "m", userHi())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	if !api.IsKind(err, api.KindTimeout) {
		t.Errorf("Await() error = %v, want timeout", err)
	}
}

func TestFuture_Error(t *testing.T) {
	f := Go(context.Background(), func(context.Context) (int, error) {
		return 0, api.NewRateLimitError("slow down")
	})
	if _, err := f.Await(context.Background()); !api.IsKind(err, api.KindRateLimit) {
		t.Errorf("Await() error = %v, want rate limit", err)
	}
}

func TestGather(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)

		var body struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		fmt.Fprintf(w, `{"id":%q,"choices":[]}`, body.Messages[0].Content)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	var reqs []ChatRequest
	for i := range 8 {
		reqs = append(reqs, ChatRequest{
			Model:    "m",
			Messages: []api.MessageParam{api.UserMessage(fmt.Sprintf("q%d", i))},
		})
	}

	out, err := Gather(context.Background(), c, 3, reqs)
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	if len(out) != len(reqs) {
		t.Fatalf("results = %d, want %d", len(out), len(reqs))
	}
	for i, resp := range out {
		if want := fmt.Sprintf("q%d", i); resp.ID != want {
			t.Errorf("out[%d].ID = %q, want %q", i, resp.ID, want)
		}
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", p)
	}
}

func TestGather_FirstErrorWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Model == "bad" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":{"message":"bad key"}}`)
			return
		}
		io.WriteString(w, helloResponse)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	reqs := []ChatRequest{
		{Model: "m", Messages: userHi()},
		{Model: "bad", Messages: userHi()},
	}
	out, err := Gather(context.Background(), c, 0, reqs)
	if !api.IsKind(err, api.KindAuth) {
		t.Errorf("Gather() error = %v, want auth", err)
	}
	if out != nil {
		t.Errorf("Gather() results = %v, want nil on failure", out)
	}
}
