// Package enginetest builds fully wired engines for tests outside the root
// package: memstore for the datastore, miniredis for counters, and the local
// provider for codes and identity assertions.
package enginetest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/internal/store/memstore"
	"github.com/MrEthical07/phoneauth/provider/local"
)

const (
	CountryCode = "1"
	Phone       = "5551234567"
	Code        = "123456"
	Audience    = "client-test"
)

// Harness holds an engine and the fakes behind it.
type Harness struct {
	Engine *phoneauth.Engine
	Store  *memstore.Store
	Redis  *miniredis.Miniredis
	Codes  *local.Provider
}

// Config returns a valid HS256 configuration with issue limits disabled.
func Config() phoneauth.Config {
	cfg := phoneauth.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte(strings.Repeat("k", 32))
	cfg.JWT.Audience = "phoneauth-test"
	cfg.Provider.FederationAudience = Audience
	cfg.Provider.Timeout = time.Second
	cfg.Provider.RetryMaxAttempts = 1
	cfg.Provider.RetryInitialInterval = 0
	cfg.Provider.RetryMaxInterval = 0
	cfg.RateLimit.Cooldown = 0
	cfg.RateLimit.HourlyMax = 0
	cfg.Metrics.Enabled = true
	return cfg
}

// New builds a harness. Mutators run on [Config] before the engine is built.
func New(t testing.TB, mutate ...func(*phoneauth.Config)) *Harness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := Config()
	for _, m := range mutate {
		m(&cfg)
	}

	st := memstore.New()
	codes := local.New(local.WithFixedCode(Code))
	engine, err := phoneauth.New().
		WithConfig(cfg).
		WithStore(st).
		WithRedis(rdb).
		WithSMSProvider(codes).
		WithEmailSender(codes).
		WithIdentityVerifier(codes).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &Harness{Engine: engine, Store: st, Redis: mr, Codes: codes}
}

// SignIn runs a full phone sign-in for phone on deviceID.
func (h *Harness) SignIn(t testing.TB, phone, deviceID string) *phoneauth.AuthResult {
	t.Helper()
	ctx := context.Background()
	if _, err := h.Engine.SendCode(ctx, phoneauth.SendCodeRequest{CountryCode: CountryCode, Phone: phone}); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}
	res, err := h.Engine.VerifyCode(ctx, phoneauth.VerifyCodeRequest{
		CountryCode: CountryCode,
		Phone:       phone,
		Code:        Code,
		Device:      phoneauth.Device{ID: deviceID, Type: "ios", Name: "test phone"},
	})
	if err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}
	return res
}

// Principal returns the caller identity behind a sign-in result.
func Principal(res *phoneauth.AuthResult, deviceID string) phoneauth.Principal {
	return phoneauth.Principal{
		UserID:    res.User.ID,
		SessionID: res.Tokens.SessionID,
		DeviceID:  deviceID,
		Role:      res.User.Role,
	}
}
