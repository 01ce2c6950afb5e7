// Package auth resolves the bearer credential used to authorize requests
// against the chat completion API.
package auth

import (
	"context"
	"os"
	"strings"

	"github.com/rhuss/routeway/pkg/api"
)

// EnvAPIKey is the environment variable holding the default credential.
const EnvAPIKey = "ROUTEWAY_API_KEY"

// missingKeyMessage is returned when no credential can be resolved.
const missingKeyMessage = "API key required. Set " + EnvAPIKey + " or pass an API key."

// Credential produces the bearer token for a request. Implementations must
// be safe for concurrent use.
type Credential interface {
	Token(ctx context.Context) (string, error)
}

// StaticKey is a fixed API key.
type StaticKey string

// Token returns the key itself.
func (k StaticKey) Token(_ context.Context) (string, error) {
	if k == "" {
		return "", api.NewAuthError(missingKeyMessage)
	}
	return string(k), nil
}

// Resolve picks the credential for a new client. An explicit key wins over
// the environment; if neither is set, it fails with an Auth error and no
// client may be constructed.
func Resolve(explicit string) (Credential, error) {
	return ResolveWith(explicit, os.LookupEnv)
}

// ResolveWith is Resolve with an injectable environment lookup.
func ResolveWith(explicit string, lookup func(string) (string, bool)) (Credential, error) {
	if key := strings.TrimSpace(explicit); key != "" {
		return StaticKey(key), nil
	}
	if lookup != nil {
		if v, ok := lookup(EnvAPIKey); ok && strings.TrimSpace(v) != "" {
			return StaticKey(strings.TrimSpace(v)), nil
		}
	}
	return nil, api.NewAuthError(missingKeyMessage)
}

// BearerHeader formats the Authorization header value for token.
func BearerHeader(token string) string {
	return "Bearer " + token
}
