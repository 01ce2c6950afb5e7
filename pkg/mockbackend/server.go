// Package mockbackend serves a deterministic chat completion API for
// integration tests and local development of routeway clients.
//
// Responses are derived from the request content alone:
//
//   - requests carrying tools get a get_weather tool call
//   - requests with a system message get a fixed pirate greeting
//   - "count from 1 to 5" in the last user message is answered literally
//   - everything else gets "Hello, nice day!"
//
// Once the last message is a tool result, the reply quotes that result. The
// same server exposes the matching tools over MCP streamable HTTP at /mcp.
//
// A model named "status-NNN" makes the server answer with HTTP status NNN
// and an OpenAI error envelope, and "mock-malformed" interleaves an invalid
// chunk into streamed responses.
package mockbackend

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rhuss/routeway/pkg/api"
)

// Config holds the mock backend settings.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	Logger          *slog.Logger

	// APIKeys, when non-empty, are the only bearer tokens accepted.
	APIKeys []string

	// JWTSecret, when set, makes the server accept HS256 tokens signed
	// with it in addition to APIKeys.
	JWTSecret []byte

	// Models is the catalog served under /v1/models.
	Models []api.Model
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":9090",
		ShutdownTimeout: 5 * time.Second,
		Logger:          slog.Default(),
		Models: []api.Model{
			{ID: "mock-model", Object: "model", Created: 1700000000, OwnedBy: "routeway-mock"},
			{ID: "mock-reasoner", Object: "model", Created: 1700000000, OwnedBy: "routeway-mock"},
		},
	}
}

// Server is the mock backend HTTP server.
type Server struct {
	cfg        Config
	logger     *slog.Logger
	router     *mux.Router
	httpServer *http.Server
}

// New creates a server. Zero-valued Config fields take their defaults.
func New(cfg Config) *Server {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.Models == nil {
		cfg.Models = def.Models
	}

	s := &Server{cfg: cfg, logger: cfg.Logger}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	r.Handle("/mcp", toolHandler(NewToolServer(nil)))

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(s.requireBearer)
	v1.HandleFunc("/chat/completions", s.handleChatCompletions).Methods(http.MethodPost)
	v1.HandleFunc("/models", s.handleListModels).Methods(http.MethodGet)
	v1.HandleFunc("/models/{id:.+}", s.handleRetrieveModel).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "invalid_request_error", "unknown_url", "Unknown request URL: "+r.Method+" "+r.URL.Path)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request_error", "", "Method not allowed: "+r.Method)
	})

	r.Use(recovery(s.logger), requestID, logging(s.logger))
	return r
}

// Handler returns the routed handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on the configured address until ctx is done, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mock backend starting", slog.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.cfg.ShutdownTimeout))
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mock backend stopped")
	return nil
}
