package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrEthical07/phoneauth/internal/retry"
)

// AdapterConfig controls timeouts and retries for every provider call.
type AdapterConfig struct {
	// Timeout bounds each individual attempt. Zero means 10s.
	Timeout time.Duration
	// Retry applies to Originate, SendEmail, and VerifyAssertion. Validate is
	// never retried: a code check may already have taken effect upstream.
	Retry   retry.Policy
	Logger  zerolog.Logger
	OnRetry func(op string, err error)
}

// Adapter wraps the configured providers behind one timeout and retry
// policy and normalizes their errors to [ErrUnavailable], [*RejectionError],
// or [ErrInvalidAssertion].
type Adapter struct {
	sms      SMSProvider
	email    EmailSender
	identity IdentityVerifier
	cfg      AdapterConfig
}

// NewAdapter builds an [Adapter]. Any provider may be nil; calls to a
// missing provider fail with [ErrUnavailable].
func NewAdapter(cfg AdapterConfig, sms SMSProvider, email EmailSender, identity IdentityVerifier) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	return &Adapter{sms: sms, email: email, identity: identity, cfg: cfg}
}

// Timeout returns the per-attempt deadline.
func (a *Adapter) Timeout() time.Duration {
	return a.cfg.Timeout
}

// HasEmailSender reports whether email delivery is configured.
func (a *Adapter) HasEmailSender() bool { return a.email != nil }

// HasIdentityVerifier reports whether federated assertions can be checked.
func (a *Adapter) HasIdentityVerifier() bool { return a.identity != nil }

// Originate asks the SMS provider to send a code to the E.164 number to.
func (a *Adapter) Originate(ctx context.Context, to string) (string, error) {
	if a.sms == nil {
		return "", fmt.Errorf("%w: sms provider not configured", ErrUnavailable)
	}
	var ref string
	err := a.call(ctx, "sms_originate", true, func(ctx context.Context) error {
		r, err := a.sms.Originate(ctx, to)
		if err != nil {
			return err
		}
		if r == "" {
			return &RejectionError{Status: "empty_reference"}
		}
		ref = r
		return nil
	})
	return ref, err
}

// Validate checks code against the provider verification ref. It makes a
// single attempt.
func (a *Adapter) Validate(ctx context.Context, ref, code string) (Validation, error) {
	if a.sms == nil {
		return Validation{}, fmt.Errorf("%w: sms provider not configured", ErrUnavailable)
	}
	var v Validation
	err := a.call(ctx, "sms_validate", false, func(ctx context.Context) error {
		out, err := a.sms.Validate(ctx, ref, code)
		if err != nil {
			return err
		}
		v = out
		return nil
	})
	return v, err
}

// SendEmail delivers code to the address to.
func (a *Adapter) SendEmail(ctx context.Context, to, code string) error {
	if a.email == nil {
		return fmt.Errorf("%w: email provider not configured", ErrUnavailable)
	}
	return a.call(ctx, "email_send", true, func(ctx context.Context) error {
		accepted, err := a.email.Send(ctx, to, code)
		if err != nil {
			return err
		}
		if !accepted {
			return &RejectionError{Status: "not_accepted"}
		}
		return nil
	})
}

// VerifyAssertion validates a third-party identity token for audience.
func (a *Adapter) VerifyAssertion(ctx context.Context, token, audience string) (Identity, error) {
	if a.identity == nil {
		return Identity{}, fmt.Errorf("%w: identity provider not configured", ErrUnavailable)
	}
	var id Identity
	err := a.call(ctx, "identity_verify", true, func(ctx context.Context) error {
		out, err := a.identity.VerifyAssertion(ctx, token, audience)
		if err != nil {
			return err
		}
		if out.Subject == "" {
			return fmt.Errorf("%w: missing subject", ErrInvalidAssertion)
		}
		id = out
		return nil
	})
	return id, err
}

func (a *Adapter) call(ctx context.Context, op string, retryable bool, fn func(context.Context) error) error {
	policy := a.cfg.Retry
	if !retryable {
		policy.MaxAttempts = 1
	}

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()

		err := fn(attemptCtx)
		if err != nil && isFinal(err) {
			return retry.Permanent(err)
		}
		return err
	}, func(err error, wait time.Duration) {
		a.cfg.Logger.Warn().Err(err).Str("op", op).Dur("backoff", wait).Msg("provider call failed, retrying")
		if a.cfg.OnRetry != nil {
			a.cfg.OnRetry(op, err)
		}
	})

	return normalize(op, err)
}

func isFinal(err error) bool {
	return IsRejection(err) || errors.Is(err, ErrInvalidAssertion)
}

func normalize(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isFinal(err), errors.Is(err, ErrUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
}
