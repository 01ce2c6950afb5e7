// Command routeway is a command-line client for OpenAI-compatible chat
// completion APIs.
//
// Configuration is read from routeway.yaml (see pkg/config) and can be
// overridden with ROUTEWAY_* environment variables or flags:
//
//	routeway chat --model gpt-4o-mini "Tell me a joke"
//	routeway chat --stream --system "Answer in French" "Hello"
//	routeway models list
//	routeway fanout --model gpt-4o-mini "first prompt" "second prompt"
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/routeway/pkg/api"
	"github.com/rhuss/routeway/pkg/client"
	"github.com/rhuss/routeway/pkg/config"
	"github.com/rhuss/routeway/pkg/debug"
	"github.com/rhuss/routeway/pkg/observability"
	"github.com/rhuss/routeway/pkg/storage"
	"github.com/rhuss/routeway/pkg/storage/memory"
	"github.com/rhuss/routeway/pkg/storage/postgres"
	"github.com/rhuss/routeway/pkg/tools/mcp"
)

// app holds the state shared by all subcommands.
type app struct {
	configPath string
	baseURL    string
	apiKey     string
	tenant     string

	cfg     *config.Config
	client  *client.Client
	store   storage.TranscriptStore
	tools   *mcp.Router
	metrics *http.Server
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, a := newRootCommand()
	if err := execute(ctx, root, a); err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			fmt.Fprintf(os.Stderr, "Error (%s): %v\n", apiErr.Kind, apiErr)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// execute runs root and releases whatever setup opened, whether the
// command succeeded or not.
func execute(ctx context.Context, root *cobra.Command, a *app) error {
	err := root.ExecuteContext(ctx)
	if terr := a.teardown(); err == nil {
		err = terr
	}
	return err
}

func newRootCommand() (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:           "routeway",
		Short:         "Chat completion client for OpenAI-compatible APIs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "path to routeway.yaml")
	flags.StringVar(&a.baseURL, "base-url", "", "API root URL (overrides config)")
	flags.StringVar(&a.apiKey, "api-key", "", "API key (overrides config and ROUTEWAY_API_KEY)")
	flags.StringVar(&a.tenant, "tenant", "", "tenant recorded with transcripts")

	root.AddCommand(
		newChatCommand(a),
		newModelsCommand(a),
		newFanoutCommand(a),
		newTranscriptsCommand(a),
	)
	return root, a
}

// setup opens the client and its collaborators. On failure everything
// opened so far is released again.
func (a *app) setup(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			a.teardown()
		}
	}()

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	a.cfg = cfg

	debug.Init(os.Stderr, cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)
	debug.Log("config", "configuration loaded", "base_url", cfg.Client.BaseURL, "storage", cfg.Storage.Type)

	if cfg.Observability.Metrics.Enabled {
		if err := a.startMetrics(cfg.Observability.Metrics); err != nil {
			return err
		}
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	a.store = store

	var opts []client.Option
	if a.baseURL != "" {
		opts = append(opts, client.WithBaseURL(a.baseURL))
	}
	if a.apiKey != "" {
		opts = append(opts, client.WithAPIKey(a.apiKey))
	}
	if store != nil {
		opts = append(opts, client.WithRecorder(store))
	}
	c, err := client.NewFromConfig(cfg, opts...)
	if err != nil {
		return err
	}
	a.client = c

	if len(cfg.MCP.Servers) > 0 {
		r, err := mcp.Dial(ctx, mcp.ServersFromConfig(cfg.MCP.Servers))
		if err != nil {
			return fmt.Errorf("connecting MCP servers: %w", err)
		}
		a.tools = r
	}
	return nil
}

// scoped returns ctx scoped to the --tenant flag.
func (a *app) scoped(ctx context.Context) context.Context {
	if a.tenant == "" {
		return ctx
	}
	return storage.WithTenant(ctx, a.tenant)
}

// startMetrics binds the metrics listener before returning so that a bad
// address fails setup.
func (a *app) startMetrics(cfg config.MetricsConfig) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("starting metrics server: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, observability.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	a.metrics = srv
	go func() {
		slog.Info("metrics server starting", "addr", ln.Addr().String(), "path", cfg.Path)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return nil
}

// teardown closes everything setup opened. Released resources are cleared,
// so calling it again is a no-op.
func (a *app) teardown() error {
	var errs []error
	if a.tools != nil {
		errs = append(errs, a.tools.Close())
		a.tools = nil
	}
	if a.client != nil {
		errs = append(errs, a.client.Close())
		a.client = nil
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.metrics.Shutdown(ctx))
		a.metrics = nil
	}
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.TranscriptStore, error) {
	switch cfg.Type {
	case "memory":
		slog.Debug("storage enabled", "type", "memory", "max_size", cfg.MaxSize)
		return memory.New(cfg.MaxSize), nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		slog.Debug("storage enabled", "type", "postgres")
		return s, nil
	default:
		return nil, nil
	}
}
