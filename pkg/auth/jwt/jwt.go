// Package jwt provides a credential source that mints short-lived HS256
// bearer tokens for gateways that accept signed JWTs instead of static
// API keys.
//
// Tokens are cached and reused until shortly before they expire, so a
// busy client signs at most one token per lifetime window.
package jwt

import (
	"context"
	"errors"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rhuss/routeway/pkg/api"
	"github.com/rhuss/routeway/pkg/auth"
)

// refreshSkew is how long before expiry a cached token is replaced.
const refreshSkew = 30 * time.Second

// Config holds the token minting configuration.
type Config struct {
	// Secret is the HMAC signing key. Required.
	Secret []byte

	// Subject is the sub claim.
	Subject string

	// Issuer is the iss claim. Omitted when empty.
	Issuer string

	// Audience is the aud claim. Omitted when empty.
	Audience string

	// TTL is the token lifetime. Default: 5 minutes.
	TTL time.Duration

	// Claims are merged into every token. Registered claims set above win.
	Claims map[string]any

	// Now overrides the clock (useful for testing).
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Source mints and caches signed tokens. It implements auth.Credential.
type Source struct {
	cfg Config

	mu      sync.Mutex
	token   string
	expires time.Time
}

var _ auth.Credential = (*Source)(nil)

// New creates a Source. It fails with an Auth error when no secret is set.
func New(cfg Config) (*Source, error) {
	if len(cfg.Secret) == 0 {
		return nil, api.NewAuthError("JWT signing secret required")
	}
	cfg.applyDefaults()
	return &Source{cfg: cfg}, nil
}

// Token returns a cached token or signs a new one.
func (s *Source) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Now()
	if s.token != "" && now.Add(refreshSkew).Before(s.expires) {
		return s.token, nil
	}

	expires := now.Add(s.cfg.TTL)
	claims := jwtlib.MapClaims{}
	for k, v := range s.cfg.Claims {
		claims[k] = v
	}
	claims["iat"] = now.Unix()
	claims["exp"] = expires.Unix()
	if s.cfg.Subject != "" {
		claims["sub"] = s.cfg.Subject
	}
	if s.cfg.Issuer != "" {
		claims["iss"] = s.cfg.Issuer
	}
	if s.cfg.Audience != "" {
		claims["aud"] = s.cfg.Audience
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", &api.Error{Kind: api.KindAuth, Message: "signing token failed", Cause: err}
	}

	s.token = signed
	s.expires = expires
	return signed, nil
}

// Verify parses token with the source's secret and returns its claims.
// It is used by the mock backend to accept minted tokens.
func Verify(token string, secret []byte) (jwtlib.MapClaims, error) {
	claims := jwtlib.MapClaims{}
	parsed, err := jwtlib.ParseWithClaims(token, claims, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, api.NewAuthError(err.Error())
	}
	if !parsed.Valid {
		return nil, api.NewAuthError("invalid token")
	}
	return claims, nil
}
