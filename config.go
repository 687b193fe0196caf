package phoneauth

import (
	"errors"
	"strings"
	"time"
)

// Config is the complete engine configuration. Start from [DefaultConfig].
type Config struct {
	JWT        JWTConfig
	Session    SessionConfig
	OTP        OTPConfig
	RateLimit  RateLimitConfig
	Provider   ProviderConfig
	Onboarding OnboardingConfig
	Account    AccountConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls token lifetimes, keys and claims.
type JWTConfig struct {
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	PhoneVerifyTTL time.Duration
	SigningMethod  string // "ed25519" (default), "hs256" optional
	PrivateKey     []byte
	PublicKey      []byte
	Issuer         string
	Audience       string
	Leeway         time.Duration
	KeyID          string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls per-device sessions.
type SessionConfig struct {
	// TouchOnLookup records last-used time when CurrentSession resolves a
	// token. Failures are logged and ignored.
	TouchOnLookup bool
	// MaxDeviceIDLength bounds client-supplied device ids.
	MaxDeviceIDLength int
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls one-time-code challenges.
type OTPConfig struct {
	ChallengeTTL    time.Duration
	MaxAttempts     int
	EmailCodeDigits int
	// MinCodeLength and MaxCodeLength bound submitted codes before any
	// challenge is touched.
	MinCodeLength int
	MaxCodeLength int
	// RedeemTimeout bounds a redemption transaction, which runs detached from
	// caller cancellation.
	RedeemTimeout time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig controls the Redis-backed counters.
type RateLimitConfig struct {
	RedisPrefix       string
	Cooldown          time.Duration
	HourlyWindow      time.Duration
	HourlyMax         int
	VerifyWindow      time.Duration
	VerifyMaxAttempts int
}

/*
====================================
PROVIDER CONFIG
====================================
*/

// ProviderConfig controls calls to the SMS, email, and identity providers.
type ProviderConfig struct {
	Timeout              time.Duration
	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	// FederationAudience is the audience identity assertions must carry.
	FederationAudience string
}

/*
====================================
ONBOARDING CONFIG
====================================
*/

// OnboardingConfig bounds the data collected during onboarding.
type OnboardingConfig struct {
	DisplayNameMaxLength int
	MinInterests         int
	MaxInterests         int
}

// AccountConfig holds account defaults.
type AccountConfig struct {
	DefaultRole         Role
	DeletionGracePeriod time.Duration
}

// AuditConfig controls event dispatch. Refresh reuse, account deletion and
// confirmed contact changes are never dropped, even with DropIfFull.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// SinkTimeout bounds one delivery to the event sink. Zero leaves it
	// unbounded.
	SinkTimeout time.Duration
}

// MetricsConfig toggles engine counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. JWT keys are not set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:      time.Hour,
			RefreshTTL:     30 * 24 * time.Hour,
			PhoneVerifyTTL: 10 * time.Minute,
			SigningMethod:  "ed25519",
			Issuer:         "phoneauth",
		},
		Session: SessionConfig{
			TouchOnLookup:     true,
			MaxDeviceIDLength: 128,
		},
		OTP: OTPConfig{
			ChallengeTTL:    10 * time.Minute,
			MaxAttempts:     5,
			EmailCodeDigits: 6,
			MinCodeLength:   4,
			MaxCodeLength:   10,
			RedeemTimeout:   15 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RedisPrefix:       "rl",
			Cooldown:          30 * time.Second,
			HourlyWindow:      time.Hour,
			HourlyMax:         5,
			VerifyWindow:      15 * time.Minute,
			VerifyMaxAttempts: 10,
		},
		Provider: ProviderConfig{
			Timeout:              10 * time.Second,
			RetryMaxAttempts:     3,
			RetryInitialInterval: 100 * time.Millisecond,
			RetryMaxInterval:     2 * time.Second,
		},
		Onboarding: OnboardingConfig{
			DisplayNameMaxLength: 64,
			MinInterests:         1,
			MaxInterests:         20,
		},
		Account: AccountConfig{
			DefaultRole:         RoleStandard,
			DeletionGracePeriod: 30 * 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize:  1024,
			DropIfFull:  true,
			SinkTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL < time.Hour || c.JWT.AccessTTL > 5*time.Hour {
		return errors.New("JWT AccessTTL must be between 1h and 5h")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be > AccessTTL")
	}
	if c.JWT.PhoneVerifyTTL <= 0 || c.JWT.PhoneVerifyTTL > time.Hour {
		return errors.New("JWT PhoneVerifyTTL must be > 0 and <= 1h")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
		return errors.New("hs256 requires a PrivateKey of at least 256 bits")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}

	// Session
	if c.Session.MaxDeviceIDLength <= 0 || c.Session.MaxDeviceIDLength > 128 {
		return errors.New("Session MaxDeviceIDLength must be between 1 and 128")
	}

	// OTP
	if c.OTP.ChallengeTTL <= 0 {
		return errors.New("OTP ChallengeTTL must be > 0")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}
	if c.OTP.EmailCodeDigits < 4 || c.OTP.EmailCodeDigits > 10 {
		return errors.New("OTP EmailCodeDigits must be between 4 and 10")
	}
	if c.OTP.MinCodeLength <= 0 || c.OTP.MaxCodeLength < c.OTP.MinCodeLength {
		return errors.New("OTP code length bounds are invalid")
	}
	if c.OTP.EmailCodeDigits < c.OTP.MinCodeLength || c.OTP.EmailCodeDigits > c.OTP.MaxCodeLength {
		return errors.New("OTP EmailCodeDigits must be within the code length bounds")
	}
	if c.OTP.RedeemTimeout <= 0 {
		return errors.New("OTP RedeemTimeout must be > 0")
	}

	// Rate limits
	if strings.TrimSpace(c.RateLimit.RedisPrefix) == "" {
		return errors.New("RateLimit RedisPrefix must not be empty")
	}
	if c.RateLimit.Cooldown < 0 || c.RateLimit.HourlyMax < 0 || c.RateLimit.VerifyMaxAttempts < 0 {
		return errors.New("RateLimit values must be >= 0")
	}
	if c.RateLimit.HourlyMax > 0 && c.RateLimit.HourlyWindow <= 0 {
		return errors.New("RateLimit HourlyWindow must be > 0 when HourlyMax is set")
	}
	if c.RateLimit.VerifyMaxAttempts > 0 && c.RateLimit.VerifyWindow <= 0 {
		return errors.New("RateLimit VerifyWindow must be > 0 when VerifyMaxAttempts is set")
	}

	// Provider
	if c.Provider.Timeout <= 0 {
		return errors.New("Provider Timeout must be > 0")
	}
	if c.Provider.RetryMaxAttempts <= 0 {
		return errors.New("Provider RetryMaxAttempts must be > 0")
	}
	if c.Provider.RetryInitialInterval < 0 || c.Provider.RetryMaxInterval < c.Provider.RetryInitialInterval {
		return errors.New("Provider retry intervals are invalid")
	}
	if c.OTP.RedeemTimeout < c.Provider.Timeout {
		return errors.New("OTP RedeemTimeout must be >= Provider Timeout")
	}

	// Onboarding
	if c.Onboarding.DisplayNameMaxLength <= 0 {
		return errors.New("Onboarding DisplayNameMaxLength must be > 0")
	}
	if c.Onboarding.MinInterests < 0 || c.Onboarding.MaxInterests < c.Onboarding.MinInterests || c.Onboarding.MaxInterests == 0 {
		return errors.New("Onboarding interest bounds are invalid")
	}

	// Account
	if !c.Account.DefaultRole.Valid() {
		return errors.New("Account DefaultRole is invalid")
	}
	if c.Account.DeletionGracePeriod <= 0 {
		return errors.New("Account DeletionGracePeriod must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	if c.Audit.SinkTimeout < 0 {
		return errors.New("Audit SinkTimeout must be >= 0")
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintSeverity ranks a [LintWarning].
type LintSeverity uint8

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "info"
	case LintWarn:
		return "warn"
	case LintHigh:
		return "high"
	default:
		return "unknown"
	}
}

// LintWarning is a valid but questionable setting.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the list returned by [Config.Lint].
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns the warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// Lint reports settings that pass [Config.Validate] but weaken abuse or
// replay protection.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.JWT.Leeway > time.Minute {
		add("leeway_large", LintWarn, "JWT leeway above 1m extends the life of expired tokens")
	}
	if c.JWT.AccessTTL > 2*time.Hour {
		add("access_ttl_long", LintInfo, "access tokens live longer than 2h")
	}
	if c.JWT.RefreshTTL > 90*24*time.Hour {
		add("refresh_ttl_long", LintWarn, "refresh tokens live longer than 90 days")
	}
	if c.JWT.Issuer == "" || c.JWT.Audience == "" {
		add("jwt_claims_unbound", LintInfo, "tokens are not bound to an issuer and audience")
	}
	if c.RateLimit.Cooldown == 0 && c.RateLimit.HourlyMax == 0 {
		add("rate_limits_disabled", LintHigh, "challenge creation is not rate limited")
	} else if c.RateLimit.Cooldown == 0 {
		add("cooldown_disabled", LintWarn, "challenges can be requested back to back")
	}
	if c.RateLimit.VerifyMaxAttempts == 0 {
		add("verify_throttle_disabled", LintWarn, "code submissions are only bounded per challenge")
	}
	if c.OTP.MaxAttempts > 10 {
		add("otp_attempts_high", LintWarn, "more than 10 attempts per challenge")
	}
	if c.OTP.ChallengeTTL > 15*time.Minute {
		add("otp_ttl_long", LintInfo, "challenges stay redeemable longer than 15m")
	}
	if c.OTP.EmailCodeDigits < 6 {
		add("email_code_short", LintWarn, "email codes shorter than 6 digits")
	}
	if c.Provider.Timeout > 30*time.Second {
		add("provider_timeout_long", LintInfo, "slow providers hold challenge row locks longer than 30s")
	}
	if c.Provider.FederationAudience == "" {
		add("federation_audience_unset", LintInfo, "federated login is disabled until an audience is set")
	}
	if c.Audit.Enabled && c.Audit.DropIfFull {
		add("audit_drops", LintInfo, "audit events are dropped under backpressure")
	}
	return ws
}
