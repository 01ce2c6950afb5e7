package mockbackend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// sseWriter writes chat completion chunks as server-sent events. Headers
// are sent with the first chunk; Done terminates the stream with the
// [DONE] sentinel.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu      sync.Mutex
	started bool
	done    bool
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

// WriteChunk marshals v and sends it as one data event.
func (s *sseWriter) WriteChunk(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk: %w", err)
	}
	return s.WriteData(string(data))
}

// WriteData sends payload verbatim as one data event.
func (s *sseWriter) WriteData(payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return errors.New("cannot write chunk: stream is done")
	}
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("failed to write chunk: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// Done writes the [DONE] sentinel. Further writes fail.
func (s *sseWriter) Done() error {
	if err := s.WriteData("[DONE]"); err != nil {
		return err
	}
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
	return nil
}
