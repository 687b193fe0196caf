package phoneauth

import (
	"strings"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte(strings.Repeat("k", 32))
	cfg.JWT.Audience = "phoneauth-test"
	cfg.Provider.FederationAudience = "client-test"
	cfg.Provider.Timeout = time.Second
	cfg.Provider.RetryMaxAttempts = 1
	cfg.Provider.RetryInitialInterval = 0
	cfg.Provider.RetryMaxInterval = 0
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{name: "baseline", mutate: func(*Config) {}, wantValid: true},
		{name: "access ttl below 1h", mutate: func(c *Config) { c.JWT.AccessTTL = 59 * time.Minute }},
		{name: "access ttl above 5h", mutate: func(c *Config) { c.JWT.AccessTTL = 5*time.Hour + time.Second }},
		{name: "access ttl 5h", mutate: func(c *Config) { c.JWT.AccessTTL = 5 * time.Hour }, wantValid: true},
		{name: "refresh not longer than access", mutate: func(c *Config) { c.JWT.RefreshTTL = c.JWT.AccessTTL }},
		{name: "phone verify ttl zero", mutate: func(c *Config) { c.JWT.PhoneVerifyTTL = 0 }},
		{name: "unknown signing method", mutate: func(c *Config) { c.JWT.SigningMethod = "rs256" }},
		{name: "short hs256 key", mutate: func(c *Config) { c.JWT.PrivateKey = []byte("short") }},
		{name: "ed25519 without keys", mutate: func(c *Config) { c.JWT.SigningMethod = "ed25519" }},
		{name: "leeway above 2m", mutate: func(c *Config) { c.JWT.Leeway = 3 * time.Minute }},
		{name: "negative leeway", mutate: func(c *Config) { c.JWT.Leeway = -time.Second }},
		{name: "blank audience", mutate: func(c *Config) { c.JWT.Audience = "   " }},
		{name: "device id length too large", mutate: func(c *Config) { c.Session.MaxDeviceIDLength = 129 }},
		{name: "zero challenge ttl", mutate: func(c *Config) { c.OTP.ChallengeTTL = 0 }},
		{name: "zero max attempts", mutate: func(c *Config) { c.OTP.MaxAttempts = 0 }},
		{name: "email digits outside bounds", mutate: func(c *Config) { c.OTP.EmailCodeDigits = 3 }},
		{name: "inverted code length bounds", mutate: func(c *Config) { c.OTP.MinCodeLength, c.OTP.MaxCodeLength = 8, 6 }},
		{name: "redeem timeout below provider timeout", mutate: func(c *Config) { c.OTP.RedeemTimeout = c.Provider.Timeout / 2 }},
		{name: "empty redis prefix", mutate: func(c *Config) { c.RateLimit.RedisPrefix = " " }},
		{name: "negative cooldown", mutate: func(c *Config) { c.RateLimit.Cooldown = -time.Second }},
		{name: "hourly cap without window", mutate: func(c *Config) { c.RateLimit.HourlyWindow = 0 }},
		{name: "limits disabled", mutate: func(c *Config) {
			c.RateLimit.Cooldown = 0
			c.RateLimit.HourlyMax = 0
			c.RateLimit.VerifyMaxAttempts = 0
		}, wantValid: true},
		{name: "zero provider timeout", mutate: func(c *Config) { c.Provider.Timeout = 0 }},
		{name: "zero retry attempts", mutate: func(c *Config) { c.Provider.RetryMaxAttempts = 0 }},
		{name: "inverted retry intervals", mutate: func(c *Config) {
			c.Provider.RetryInitialInterval = time.Second
			c.Provider.RetryMaxInterval = time.Millisecond
		}},
		{name: "interest bounds inverted", mutate: func(c *Config) { c.Onboarding.MinInterests, c.Onboarding.MaxInterests = 5, 2 }},
		{name: "unknown default role", mutate: func(c *Config) { c.Account.DefaultRole = "root" }},
		{name: "zero grace period", mutate: func(c *Config) { c.Account.DeletionGracePeriod = 0 }},
		{name: "audit enabled without buffer", mutate: func(c *Config) { c.Audit.Enabled, c.Audit.BufferSize = true, 0 }},
		{name: "negative sink timeout", mutate: func(c *Config) { c.Audit.SinkTimeout = -time.Second }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDefaultConfigNeedsKeys(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected ed25519 default without keys to fail validation")
	}
}

func TestBuilderRejectsMissingDependencies(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := New().WithConfig(testConfig()).WithStore(NewMemoryStore()).Build(); err == nil {
		t.Fatal("expected error without redis")
	}
}

func TestWithConfigCopiesKeys(t *testing.T) {
	cfg := testConfig()
	b := New().WithConfig(cfg)
	cfg.JWT.PrivateKey[0] = 'x'
	if b.config.JWT.PrivateKey[0] != 'k' {
		t.Fatal("builder config aliases caller key material")
	}
}
