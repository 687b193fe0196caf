package challenge

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/phoneauth/internal"
	"github.com/MrEthical07/phoneauth/internal/rate"
	"github.com/MrEthical07/phoneauth/internal/store"
	"github.com/MrEthical07/phoneauth/provider"
)

var (
	ErrNoActiveChallenge = errors.New("no active challenge")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrAttemptsExceeded  = errors.New("challenge attempts exceeded")
	ErrInvalidCode       = errors.New("invalid code")
	ErrInvalidTarget     = errors.New("invalid challenge target")
)

const (
	metaCodeDigest = "code_digest"

	statusApproved = "approved"
	statusMismatch = "mismatch"
	statusPending  = "pending"
)

// LimitError reports a denied rate-limit check.
type LimitError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *LimitError) Error() string { return e.Err.Error() }
func (e *LimitError) Unwrap() error { return e.Err }

// AttemptError is a redemption failure that charged an attempt. The
// transaction must be committed before it is reported.
type AttemptError struct {
	Err       error
	Attempts  int
	Remaining int
}

func (e *AttemptError) Error() string { return e.Err.Error() }
func (e *AttemptError) Unwrap() error { return e.Err }

// Limiter gates a target key. *limiters.ChallengeLimiter and
// *limiters.VerifyLimiter satisfy it.
type Limiter interface {
	Check(ctx context.Context, target string) (rate.Decision, error)
}

// Provider is the part of *provider.Adapter the manager needs.
type Provider interface {
	Originate(ctx context.Context, to string) (string, error)
	Validate(ctx context.Context, ref, code string) (provider.Validation, error)
	SendEmail(ctx context.Context, to, code string) error
}

// Config holds challenge lifetimes.
type Config struct {
	TTL         time.Duration
	MaxAttempts int
	// EmailCodeDigits is the length of locally generated email codes.
	EmailCodeDigits int
	// ResendAfter is reported to clients as the earliest next request.
	ResendAfter time.Duration
}

// ClientMeta is recorded on the challenge row.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// Created describes a new challenge.
type Created struct {
	ChallengeID string
	ExpiresAt   time.Time
	RetryAfter  time.Duration
}

// Manager implements challenge creation and redemption.
type Manager struct {
	store    store.Store
	issue    Limiter
	throttle Limiter
	provider Provider
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
}

// New builds a [Manager]. issue gates Create; throttle gates Redeem. Either
// may be nil.
func New(st store.Store, issue, throttle Limiter, p Provider, cfg Config, log zerolog.Logger) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.EmailCodeDigits <= 0 {
		cfg.EmailCodeDigits = 6
	}
	return &Manager{
		store:    st,
		issue:    issue,
		throttle: throttle,
		provider: p,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Create rate-limits, originates a code, and persists the challenge in its
// own transaction.
func (m *Manager) Create(ctx context.Context, target store.Target, typ store.ChallengeType, meta ClientMeta) (Created, error) {
	if !typ.Valid() || !validTarget(target) {
		return Created{}, ErrInvalidTarget
	}

	if m.issue != nil {
		d, err := m.issue.Check(ctx, target.Key())
		if err != nil {
			if errors.Is(err, rate.ErrUnavailable) {
				return Created{}, err
			}
			return Created{}, &LimitError{Err: err, RetryAfter: d.RetryAfter}
		}
	}

	c := &store.Challenge{
		ID:          uuid.NewString(),
		Type:        typ,
		CountryCode: target.CountryCode,
		Phone:       target.Phone,
		Email:       target.Email,
		MaxAttempts: m.cfg.MaxAttempts,
		ClientIP:    meta.IP,
		UserAgent:   meta.UserAgent,
	}
	if target.UserID != "" {
		uid := target.UserID
		c.UserID = &uid
	}

	if target.IsPhone() {
		ref, err := m.provider.Originate(ctx, target.E164())
		if err != nil {
			return Created{}, err
		}
		c.ProviderRef = ref
		c.ProviderStatus = statusPending
	} else {
		code, err := internal.NewOTP(m.cfg.EmailCodeDigits)
		if err != nil {
			return Created{}, err
		}
		if err := m.provider.SendEmail(ctx, target.Email, code); err != nil {
			return Created{}, err
		}
		c.ProviderRef = "email:" + c.ID
		c.ProviderStatus = statusPending
		c.ProviderMeta = map[string]string{metaCodeDigest: internal.Digest(code)}
	}

	now := m.now()
	c.CreatedAt = now
	c.ExpiresAt = now.Add(m.cfg.TTL)

	if err := m.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateChallenge(ctx, c)
	}); err != nil {
		m.log.Error().Err(err).Str("challenge_id", c.ID).Str("provider_ref", c.ProviderRef).
			Msg("challenge originated but not persisted")
		return Created{}, err
	}

	return Created{ChallengeID: c.ID, ExpiresAt: c.ExpiresAt, RetryAfter: m.cfg.ResendAfter}, nil
}

// Redeem validates code against the newest challenge for (target, typ)
// under a row lock held by tx. A newest challenge that was already redeemed
// is reported as ErrNoActiveChallenge; older challenges are superseded.
func (m *Manager) Redeem(ctx context.Context, tx store.Tx, target store.Target, typ store.ChallengeType, code string) (*store.Challenge, error) {
	if !typ.Valid() || !validTarget(target) {
		return nil, ErrInvalidTarget
	}

	if m.throttle != nil {
		d, err := m.throttle.Check(ctx, target.Key())
		if err != nil {
			if errors.Is(err, rate.ErrUnavailable) {
				return nil, err
			}
			return nil, &LimitError{Err: err, RetryAfter: d.RetryAfter}
		}
	}

	c, err := tx.LockLatestChallenge(ctx, target, typ)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoActiveChallenge
		}
		return nil, err
	}

	if c.Verified {
		return nil, ErrNoActiveChallenge
	}
	now := m.now()
	if c.Expired(now) {
		return nil, ErrChallengeExpired
	}
	if c.Attempts >= c.MaxAttempts {
		return nil, ErrAttemptsExceeded
	}

	c.Attempts++

	valid, status, detail, verr := m.check(ctx, c, code)
	c.ProviderStatus = status
	if len(detail) > 0 {
		if c.ProviderMeta == nil {
			c.ProviderMeta = map[string]string{}
		}
		for k, v := range detail {
			c.ProviderMeta["last_"+k] = v
		}
	}

	if verr == nil && valid {
		at := now
		c.Verified = true
		c.VerifiedAt = &at
	}

	if err := tx.SaveChallenge(ctx, c); err != nil {
		return nil, err
	}

	attemptErr := func(err error) error {
		return &AttemptError{Err: err, Attempts: c.Attempts, Remaining: c.MaxAttempts - c.Attempts}
	}
	switch {
	case verr != nil:
		return nil, attemptErr(verr)
	case !valid:
		return nil, attemptErr(ErrInvalidCode)
	}
	return c, nil
}

// check runs detached from the caller's cancellation: a disconnect must not
// un-charge an attempt the provider may already have seen.
func (m *Manager) check(ctx context.Context, c *store.Challenge, code string) (bool, string, map[string]string, error) {
	if c.Email != "" && c.Phone == "" {
		if internal.DigestMatches(c.ProviderMeta[metaCodeDigest], code) {
			return true, statusApproved, nil, nil
		}
		return false, statusMismatch, nil, nil
	}

	v, err := m.provider.Validate(context.WithoutCancel(ctx), c.ProviderRef, code)
	var rej *provider.RejectionError
	if errors.As(err, &rej) {
		return false, rej.Status, map[string]string{"detail": rej.Detail}, nil
	}
	if err != nil {
		m.log.Warn().Err(err).Str("challenge_id", c.ID).Int("attempt", c.Attempts).Msg("provider validation failed")
		return false, "provider_error", map[string]string{"error": err.Error()}, err
	}
	status := v.Status
	if status == "" {
		status = statusPending
		if v.Valid {
			status = statusApproved
		}
	}
	detail := v.Detail
	if !v.Valid {
		detail = mergeDetail(detail, "attempt", strconv.Itoa(c.Attempts))
	}
	return v.Valid, status, detail, nil
}

func mergeDetail(in map[string]string, k, v string) map[string]string {
	out := make(map[string]string, len(in)+1)
	for key, val := range in {
		out[key] = val
	}
	out[k] = v
	return out
}

func validTarget(t store.Target) bool {
	if t.IsPhone() {
		return t.CountryCode != ""
	}
	return t.Email != "" && t.UserID != ""
}
