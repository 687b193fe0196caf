package phoneauth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	internalaudit "github.com/MrEthical07/phoneauth/internal/audit"
	"github.com/MrEthical07/phoneauth/internal/challenge"
	"github.com/MrEthical07/phoneauth/internal/sessions"
	"github.com/MrEthical07/phoneauth/internal/store"
	"github.com/MrEthical07/phoneauth/jwt"
	"github.com/MrEthical07/phoneauth/provider"
)

// Engine runs phone and federated sign-in, sessions, onboarding and
// account changes. Build one with [Builder]; it is safe for concurrent use.
type Engine struct {
	config     Config
	store      store.Store
	redis      redis.UniversalClient
	tokens     *jwt.Manager
	providers  *provider.Adapter
	challenges *challenge.Manager
	sessions   *sessions.Issuer
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	log        zerolog.Logger
	now        func() time.Time
}

// Close flushes pending events. The store and redis client belong to the
// caller and stay open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByType breaks AuditDropped down by event type.
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	if e == nil || e.audit == nil {
		return nil
	}
	return e.audit.DroppedByType()
}

// MetricsSnapshot copies the current counters and latency buckets.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return NewMetrics(MetricsConfig{}).Snapshot()
	}
	return e.metrics.Snapshot()
}

// Ping checks the datastore.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.store.Ping(ctx); err != nil {
		return e.fail(ctx, "ping", err)
	}
	return nil
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.challenges == nil || e.sessions == nil {
		return newError(KindInternal, ErrEngineNotReady)
	}
	return nil
}

// fail classifies err for the caller. Internal causes are logged with the
// supplied key/value pairs and replaced by ErrInternal.
func (e *Engine) fail(ctx context.Context, op string, err error, kv ...string) error {
	pub, internal := classify(err)
	if pub == nil {
		return nil
	}

	switch {
	case internal:
		ev := e.log.Error().Err(err).Str("op", op)
		addFields(ev, kv)
		if ip := clientIPFromContext(ctx); ip != "" {
			ev = ev.Str("ip", ip)
		}
		ev.Msg("operation failed")
	case pub.Kind == KindProviderUnavailable:
		e.metricInc(MetricProviderUnavailable)
		ev := e.log.Warn().Err(err).Str("op", op)
		addFields(ev, kv)
		ev.Msg("dependency unavailable")
	}
	return pub
}

func addFields(ev *zerolog.Event, kv []string) {
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			ev.Str(kv[i], kv[i+1])
		}
	}
}

// redeemTx runs fn in one transaction detached from the caller's
// cancellation and bounded by OTP.RedeemTimeout. When fn fails with a
// charged redemption, the attempt bookkeeping is committed and the failure
// returned afterwards; every other error rolls back the whole transaction.
// fn must not mutate anything before the redemption.
func (e *Engine) redeemTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.OTP.RedeemTimeout)
	defer cancel()

	var charged error
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		err := fn(ctx, tx)
		var attempt *challenge.AttemptError
		if errors.As(err, &attempt) {
			charged = err
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	return charged
}

// loadActiveUser returns the user behind p, refusing accounts that can no
// longer hold sessions.
func (e *Engine) loadActiveUser(ctx context.Context, tx store.Tx, p Principal) (*store.User, error) {
	if p.UserID == "" {
		return nil, newError(KindUnauthorized, ErrUnauthorized)
	}
	u, err := tx.UserByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(KindUnauthorized, ErrUnauthorized)
		}
		return nil, err
	}
	if !sessions.UserCanHoldSession(u) {
		return nil, newError(KindUnauthorized, ErrAccountInactive)
	}
	return u, nil
}

// admit checks whether u may sign in at now. reactivate is true when a
// scheduled deletion is still inside its grace window and must be
// cancelled before a session is issued.
func admit(u *store.User, now time.Time) (reactivate bool, err error) {
	switch {
	case u.IsSuspended:
		return false, newError(KindConflict, ErrAccountSuspended)
	case u.DeletedAt != nil:
		return false, newError(KindUnauthorized, ErrAccountInactive)
	case u.DeletionScheduledFor != nil:
		if now.Before(*u.DeletionScheduledFor) {
			return true, nil
		}
		return false, newError(KindUnauthorized, ErrAccountInactive)
	case !u.IsActive:
		return false, newError(KindUnauthorized, ErrAccountInactive)
	}
	return false, nil
}

func reactivate(u *store.User, now time.Time) {
	u.IsActive = true
	u.DeletionScheduledFor = nil
	u.UpdatedAt = now
}

func (e *Engine) clientMeta(ctx context.Context) challenge.ClientMeta {
	return challenge.ClientMeta{IP: clientIPFromContext(ctx), UserAgent: userAgentFromContext(ctx)}
}

func sessionDevice(d Device) sessions.Device {
	return sessions.Device{ID: d.ID, Type: d.Type, Name: d.Name, AppVersion: d.AppVersion, OSVersion: d.OSVersion}
}

func tokenPair(p sessions.Pair) *TokenPair {
	return &TokenPair{
		SessionID:        p.SessionID,
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}
