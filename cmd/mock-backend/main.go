// Command mock-backend runs a deterministic chat completion server for
// integration testing of routeway clients.
//
// Configuration:
//
//	MOCK_PORT       - Listen port (default: 9090)
//	MOCK_API_KEYS   - Comma-separated accepted bearer tokens (default: any)
//	MOCK_JWT_SECRET - HS256 secret for accepting signed tokens (optional)
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rhuss/routeway/pkg/debug"
	"github.com/rhuss/routeway/pkg/mockbackend"
)

func main() {
	debug.Init(os.Stderr, "", "INFO", "text")

	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	cfg := mockbackend.DefaultConfig()
	cfg.Addr = ":" + port
	cfg.Logger = slog.Default()
	for _, k := range strings.Split(os.Getenv("MOCK_API_KEYS"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			cfg.APIKeys = append(cfg.APIKeys, k)
		}
	}
	if secret := os.Getenv("MOCK_JWT_SECRET"); secret != "" {
		cfg.JWTSecret = []byte(secret)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mockbackend.New(cfg).ListenAndServe(ctx); err != nil {
		slog.Error("mock backend failed", "error", err)
		os.Exit(1)
	}
}
