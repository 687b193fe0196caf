// Package oidc verifies OpenID Connect ID tokens against a provider's JWKS
// endpoint and implements provider.IdentityVerifier.
//
// Only RSA signing keys (RS256/RS384/RS512) are accepted. Keys are cached
// and refetched when an unknown kid shows up, at most once per
// MinRefreshInterval.
package oidc

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/phoneauth/provider"
)

// Config describes one identity provider.
type Config struct {
	Issuer             string
	JWKSURL            string
	Leeway             time.Duration
	MinRefreshInterval time.Duration
	HTTPClient         *http.Client
}

// Verifier implements provider.IdentityVerifier.
type Verifier struct {
	cfg  Config
	http *http.Client

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

var _ provider.IdentityVerifier = (*Verifier)(nil)

// New returns a [Verifier]. Keys are fetched lazily on first use.
func New(cfg Config) (*Verifier, error) {
	if cfg.Issuer == "" || cfg.JWKSURL == "" {
		return nil, errors.New("oidc: issuer and jwks url are required")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("oidc: invalid leeway")
	}
	if cfg.MinRefreshInterval <= 0 {
		cfg.MinRefreshInterval = time.Minute
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Verifier{cfg: cfg, http: hc, keys: map[string]*rsa.PublicKey{}}, nil
}

type idClaims struct {
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	jwt.RegisteredClaims
}

// VerifyAssertion checks signature, issuer, audience, and expiry. A JWKS
// transport failure is returned as-is so callers can retry; every other
// failure wraps [provider.ErrInvalidAssertion].
func (v *Verifier) VerifyAssertion(ctx context.Context, token, audience string) (provider.Identity, error) {
	var fetchErr error
	keyFunc := func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, err := v.key(ctx, kid)
		if err != nil {
			fetchErr = err
			return nil, err
		}
		if key == nil {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return key, nil
	}

	claims := &idClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, keyFunc,
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.cfg.Leeway),
	)
	if fetchErr != nil {
		return provider.Identity{}, fetchErr
	}
	if err != nil || !parsed.Valid {
		return provider.Identity{}, fmt.Errorf("%w: %v", provider.ErrInvalidAssertion, err)
	}
	if claims.Subject == "" {
		return provider.Identity{}, fmt.Errorf("%w: missing subject", provider.ErrInvalidAssertion)
	}

	return provider.Identity{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: truthy(claims.EmailVerified),
	}, nil
}

// Some providers encode email_verified as a string.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	}
	return false
}

func (v *Verifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	k, ok := v.keys[kid]
	fresh := time.Since(v.fetchedAt) < v.cfg.MinRefreshInterval
	v.mu.RUnlock()
	if ok {
		return k, nil
	}
	if fresh {
		return nil, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if k, ok := v.keys[kid]; ok {
		return k, nil
	}
	if time.Since(v.fetchedAt) < v.cfg.MinRefreshInterval {
		return nil, nil
	}

	keys, err := v.fetch(ctx)
	if err != nil {
		return nil, err
	}
	v.keys = keys
	v.fetchedAt = time.Now()
	return v.keys[kid], nil
}

type jwks struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		Use string `json:"use"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (v *Verifier) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.JWKSURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oidc: jwks status %d", resp.StatusCode)
	}

	var set jwks
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&set); err != nil {
		return nil, fmt.Errorf("oidc: decode jwks: %w", err)
	}

	out := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := rsaKey(k.N, k.E)
		if err != nil {
			continue
		}
		out[k.Kid] = pub
	}
	return out, nil
}

func rsaKey(n64, e64 string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n64)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(e64)
	if err != nil {
		return nil, err
	}
	e := new(big.Int).SetBytes(eb)
	if !e.IsInt64() || e.Int64() < 3 {
		return nil, errors.New("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(e.Int64())}, nil
}
