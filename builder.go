package phoneauth

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	internalaudit "github.com/MrEthical07/phoneauth/internal/audit"
	"github.com/MrEthical07/phoneauth/internal/challenge"
	"github.com/MrEthical07/phoneauth/internal/limiters"
	"github.com/MrEthical07/phoneauth/internal/rate"
	"github.com/MrEthical07/phoneauth/internal/retry"
	"github.com/MrEthical07/phoneauth/internal/sessions"
	"github.com/MrEthical07/phoneauth/jwt"
	"github.com/MrEthical07/phoneauth/provider"
)

// Builder collects dependencies and configuration for an [Engine].
type Builder struct {
	config Config
	store  Store
	redis  redis.UniversalClient

	sms      provider.SMSProvider
	email    provider.EmailSender
	identity provider.IdentityVerifier

	sink   EventSink
	logger *zerolog.Logger

	built bool
}

// New starts a builder with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the datastore. Required.
func (b *Builder) WithStore(st Store) *Builder {
	b.store = st
	return b
}

// WithRedis sets the client backing rate-limit counters. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSMSProvider sets the provider that originates and validates phone
// codes. Required.
func (b *Builder) WithSMSProvider(p provider.SMSProvider) *Builder {
	b.sms = p
	return b
}

// WithEmailSender sets the email delivery provider. Without one, email
// challenges fail as provider-unavailable.
func (b *Builder) WithEmailSender(s provider.EmailSender) *Builder {
	b.email = s
	return b
}

// WithIdentityVerifier sets the federated identity verifier. Without one,
// FederatedLogin fails as provider-unavailable.
func (b *Builder) WithIdentityVerifier(v provider.IdentityVerifier) *Builder {
	b.identity = v
	return b
}

// WithEventSink sets where engine events are delivered. Events are only
// dispatched when Audit.Enabled is set.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.sink = sink
	return b
}

// WithLogger sets the engine logger. Defaults to a disabled logger.
func (b *Builder) WithLogger(l zerolog.Logger) *Builder {
	b.logger = &l
	return b
}

// WithMetricsEnabled toggles engine counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles send and redeem latency buckets.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. A builder can be
// built once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("store required")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.sms == nil {
		return nil, errors.New("sms provider required")
	}

	log := zerolog.Nop()
	if b.logger != nil {
		log = *b.logger
	}
	log = log.With().Str("component", "phoneauth").Logger()

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:      cfg.JWT.AccessTTL,
		RefreshTTL:     cfg.JWT.RefreshTTL,
		PhoneVerifyTTL: cfg.JWT.PhoneVerifyTTL,
		SigningMethod:  jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:     cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:      cloneBytes(cfg.JWT.PublicKey),
		Issuer:         cfg.JWT.Issuer,
		Audience:       cfg.JWT.Audience,
		Leeway:         cfg.JWT.Leeway,
		KeyID:          cfg.JWT.KeyID,
	})
	if err != nil {
		return nil, err
	}

	// -------- RATE LIMITS --------
	rl := rate.New(b.redis, cfg.RateLimit.RedisPrefix)
	issueLimiter := limiters.NewChallengeLimiter(rl, limiters.ChallengeConfig{
		Cooldown:     cfg.RateLimit.Cooldown,
		HourlyWindow: cfg.RateLimit.HourlyWindow,
		HourlyMax:    cfg.RateLimit.HourlyMax,
	})
	verifyLimiter := limiters.NewVerifyLimiter(rl, limiters.VerifyConfig{
		Window:      cfg.RateLimit.VerifyWindow,
		MaxAttempts: cfg.RateLimit.VerifyMaxAttempts,
	})

	// -------- PROVIDERS --------
	adapter := provider.NewAdapter(provider.AdapterConfig{
		Timeout: cfg.Provider.Timeout,
		Retry: retry.Policy{
			MaxAttempts:     cfg.Provider.RetryMaxAttempts,
			InitialInterval: cfg.Provider.RetryInitialInterval,
			MaxInterval:     cfg.Provider.RetryMaxInterval,
			Multiplier:      2,
		},
		Logger: log,
	}, b.sms, b.email, b.identity)

	engine := &Engine{
		config:    cfg,
		store:     b.store,
		redis:     b.redis,
		tokens:    jm,
		providers: adapter,
		sessions:  sessions.New(jm),
		metrics:   NewMetrics(cfg.Metrics),
		log:       log,
		now:       time.Now,
	}
	engine.challenges = challenge.New(b.store, issueLimiter, verifyLimiter, adapter, challenge.Config{
		TTL:             cfg.OTP.ChallengeTTL,
		MaxAttempts:     cfg.OTP.MaxAttempts,
		EmailCodeDigits: cfg.OTP.EmailCodeDigits,
		ResendAfter:     cfg.RateLimit.Cooldown,
	}, log)
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		Retain:      retainedAuditEvents,
		SinkTimeout: cfg.Audit.SinkTimeout,
	}, b.sink)

	b.built = true

	return engine, nil
}
