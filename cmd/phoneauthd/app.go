package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	nats "github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/internal/httpapi"
	"github.com/MrEthical07/phoneauth/internal/logging"
	"github.com/MrEthical07/phoneauth/internal/retry"
	"github.com/MrEthical07/phoneauth/metrics/export/prometheus"
	"github.com/MrEthical07/phoneauth/provider"
	"github.com/MrEthical07/phoneauth/provider/local"
	"github.com/MrEthical07/phoneauth/provider/natsmail"
	"github.com/MrEthical07/phoneauth/provider/oidc"
	"github.com/MrEthical07/phoneauth/provider/twilio"
)

type app struct {
	cfg    *config
	log    zerolog.Logger
	store  phoneauth.Store
	redis  *redis.Client
	nats   *nats.Conn
	engine *phoneauth.Engine
	echo   *echo.Echo

	closed bool
}

func newApp(ctx context.Context, cfg *config) (*app, error) {
	a := &app{cfg: cfg, log: logging.New(cfg.AppEnv, cfg.LogLevel)}
	connect := retry.DefaultPolicy()
	connect.MaxAttempts = cfg.ConnectAttempts
	connect.MaxInterval = 5 * time.Second

	st, err := phoneauth.OpenPostgres(ctx, phoneauth.PostgresConfig{
		DSN:             cfg.DatabaseDSN,
		MaxOpenConns:    cfg.DatabaseMaxOpen,
		MaxIdleConns:    cfg.DatabaseMaxIdle,
		ConnMaxLifetime: cfg.DatabaseLifetime,
		Verbose:         cfg.LogLevel == "debug",
		AutoMigrate:     cfg.AutoMigrate,
		ConnectAttempts: cfg.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.store = st

	a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	err = retry.Do(ctx, connect, func(ctx context.Context) error {
		return a.redis.Ping(ctx).Err()
	}, a.logRetry("redis"))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	if cfg.NATSURL != "" {
		err = retry.Do(ctx, connect, func(context.Context) error {
			nc, err := nats.Connect(cfg.NATSURL, nats.Name("phoneauthd"), nats.MaxReconnects(-1))
			if err != nil {
				return err
			}
			a.nats = nc
			return nil
		}, a.logRetry("nats"))
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
	}

	builder := phoneauth.New().
		WithConfig(cfg.engineConfig()).
		WithStore(st).
		WithRedis(a.redis).
		WithLogger(a.log)
	if err := a.wireProviders(builder); err != nil {
		a.close()
		return nil, err
	}
	if a.nats != nil && cfg.AuditEnabled {
		builder.WithEventSink(phoneauth.NewNATSSink(a.nats, cfg.NATSEventSubject, a.log))
	}

	engine, err := builder.Build()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	a.engine = engine

	engineCfg := cfg.engineConfig()
	for _, w := range engineCfg.Lint() {
		a.log.Warn().Str("code", w.Code).Str("severity", w.Severity.String()).Msg(w.Message)
	}

	a.echo = echo.New()
	httpapi.NewRouter(engine, cfg.HTTPBasePath, prometheus.NewPrometheusExporter(engine).Handler()).Setup(a.echo)
	return a, nil
}

// wireProviders picks the SMS, email, and identity providers from the
// configuration. The local provider is only allowed in the local environment.
func (a *app) wireProviders(b *phoneauth.Builder) error {
	cfg := a.cfg
	var sms provider.SMSProvider
	switch {
	case cfg.TwilioAccountSID != "":
		c, err := twilio.New(twilio.Config{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			ServiceSID: cfg.TwilioServiceSID,
		})
		if err != nil {
			return err
		}
		sms = c
	case cfg.LocalCode != "" && cfg.AppEnv == "local":
		p := local.New(local.WithFixedCode(cfg.LocalCode))
		sms = p
		b.WithEmailSender(p)
		a.log.Warn().Msg("using local verification provider")
	default:
		return errors.New("no sms provider configured")
	}
	b.WithSMSProvider(sms)

	if a.nats != nil {
		sender, err := natsmail.New(a.nats, cfg.NATSMailSubject, "")
		if err != nil {
			return err
		}
		b.WithEmailSender(sender)
	}

	if cfg.OIDCIssuer != "" {
		v, err := oidc.New(oidc.Config{Issuer: cfg.OIDCIssuer, JWKSURL: cfg.OIDCJWKSURL})
		if err != nil {
			return err
		}
		b.WithIdentityVerifier(v)
	}
	return nil
}

func (a *app) logRetry(target string) func(error, time.Duration) {
	return func(err error, wait time.Duration) {
		a.log.Warn().Err(err).Str("target", target).Dur("wait", wait).Msg("connect failed, retrying")
	}
}

// run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *app) run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.cfg.HTTPAddr).Msg("listening")
		if err := a.echo.Start(a.cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	a.log.Info().Msg("shutting down")
	return a.echo.Shutdown(shutdownCtx)
}

func (a *app) close() {
	if a.closed {
		return
	}
	a.closed = true
	if a.engine != nil {
		a.engine.Close()
	}
	if a.nats != nil {
		if err := a.nats.Drain(); err != nil {
			a.log.Warn().Err(err).Msg("nats drain failed")
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
