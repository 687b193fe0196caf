package main

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/MrEthical07/phoneauth"
)

// config is the daemon configuration read from the environment.
type config struct {
	AppEnv   string `env:"PHONEAUTH_ENV" envDefault:"local"`
	LogLevel string `env:"PHONEAUTH_LOG_LEVEL" envDefault:"info"`

	HTTPAddr        string        `env:"PHONEAUTH_HTTP_ADDR" envDefault:":8080"`
	HTTPBasePath    string        `env:"PHONEAUTH_HTTP_BASE_PATH" envDefault:"/v1"`
	ShutdownTimeout time.Duration `env:"PHONEAUTH_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	DatabaseDSN      string        `env:"PHONEAUTH_DATABASE_DSN"`
	DatabaseMaxOpen  int           `env:"PHONEAUTH_DATABASE_MAX_OPEN" envDefault:"20"`
	DatabaseMaxIdle  int           `env:"PHONEAUTH_DATABASE_MAX_IDLE" envDefault:"5"`
	DatabaseLifetime time.Duration `env:"PHONEAUTH_DATABASE_CONN_LIFETIME" envDefault:"30m"`
	AutoMigrate      bool          `env:"PHONEAUTH_DATABASE_AUTO_MIGRATE" envDefault:"false"`

	RedisAddr     string `env:"PHONEAUTH_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"PHONEAUTH_REDIS_PASSWORD"`
	RedisDB       int    `env:"PHONEAUTH_REDIS_DB" envDefault:"0"`

	NATSURL          string `env:"PHONEAUTH_NATS_URL"`
	NATSEventSubject string `env:"PHONEAUTH_NATS_EVENT_SUBJECT" envDefault:"phoneauth.events"`
	NATSMailSubject  string `env:"PHONEAUTH_NATS_MAIL_SUBJECT" envDefault:"mail.send"`

	ConnectAttempts int `env:"PHONEAUTH_CONNECT_ATTEMPTS" envDefault:"5"`

	JWTSigningMethod string        `env:"PHONEAUTH_JWT_SIGNING_METHOD" envDefault:"ed25519"`
	JWTPrivateKey    string        `env:"PHONEAUTH_JWT_PRIVATE_KEY"`
	JWTPublicKey     string        `env:"PHONEAUTH_JWT_PUBLIC_KEY"`
	JWTKeyID         string        `env:"PHONEAUTH_JWT_KEY_ID"`
	JWTIssuer        string        `env:"PHONEAUTH_JWT_ISSUER" envDefault:"phoneauth"`
	JWTAudience      string        `env:"PHONEAUTH_JWT_AUDIENCE" envDefault:"phoneauth"`
	AccessTTL        time.Duration `env:"PHONEAUTH_ACCESS_TTL" envDefault:"1h"`
	RefreshTTL       time.Duration `env:"PHONEAUTH_REFRESH_TTL" envDefault:"720h"`

	OTPChallengeTTL  time.Duration `env:"PHONEAUTH_OTP_TTL" envDefault:"10m"`
	OTPMaxAttempts   int           `env:"PHONEAUTH_OTP_MAX_ATTEMPTS" envDefault:"5"`
	SendCooldown     time.Duration `env:"PHONEAUTH_SEND_COOLDOWN" envDefault:"30s"`
	SendHourlyMax    int           `env:"PHONEAUTH_SEND_HOURLY_MAX" envDefault:"5"`
	ProviderTimeout  time.Duration `env:"PHONEAUTH_PROVIDER_TIMEOUT" envDefault:"10s"`
	DeletionGrace    time.Duration `env:"PHONEAUTH_DELETION_GRACE" envDefault:"720h"`
	AuditEnabled     bool          `env:"PHONEAUTH_AUDIT_ENABLED" envDefault:"true"`
	AuditSinkTimeout time.Duration `env:"PHONEAUTH_AUDIT_SINK_TIMEOUT" envDefault:"2s"`
	LatencyHistogram bool          `env:"PHONEAUTH_LATENCY_HISTOGRAMS" envDefault:"true"`

	TwilioAccountSID string `env:"PHONEAUTH_TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"PHONEAUTH_TWILIO_AUTH_TOKEN"`
	TwilioServiceSID string `env:"PHONEAUTH_TWILIO_SERVICE_SID"`
	// LocalCode enables the in-process provider with a fixed code. Only
	// honoured when AppEnv is "local".
	LocalCode string `env:"PHONEAUTH_LOCAL_CODE"`

	OIDCIssuer   string `env:"PHONEAUTH_OIDC_ISSUER"`
	OIDCJWKSURL  string `env:"PHONEAUTH_OIDC_JWKS_URL"`
	OIDCAudience string `env:"PHONEAUTH_OIDC_AUDIENCE"`
}

// loadConfig reads an optional .env file and then the environment.
func loadConfig() (*config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := &config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("PHONEAUTH_DATABASE_DSN is required")
	}
	return cfg, nil
}

// engineConfig maps the daemon settings onto the engine configuration.
func (c *config) engineConfig() phoneauth.Config {
	cfg := phoneauth.DefaultConfig()
	cfg.JWT.SigningMethod = c.JWTSigningMethod
	cfg.JWT.PrivateKey = []byte(c.JWTPrivateKey)
	cfg.JWT.PublicKey = []byte(c.JWTPublicKey)
	cfg.JWT.KeyID = c.JWTKeyID
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.Audience = c.JWTAudience
	cfg.JWT.AccessTTL = c.AccessTTL
	cfg.JWT.RefreshTTL = c.RefreshTTL

	cfg.OTP.ChallengeTTL = c.OTPChallengeTTL
	cfg.OTP.MaxAttempts = c.OTPMaxAttempts
	cfg.RateLimit.Cooldown = c.SendCooldown
	cfg.RateLimit.HourlyMax = c.SendHourlyMax
	cfg.Provider.Timeout = c.ProviderTimeout
	cfg.Provider.FederationAudience = c.OIDCAudience
	cfg.Account.DeletionGracePeriod = c.DeletionGrace

	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Audit.SinkTimeout = c.AuditSinkTimeout
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = c.LatencyHistogram
	return cfg
}
