package phoneauth

import (
	"context"
	"time"

	"github.com/MrEthical07/phoneauth/internal/store"
)

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	DatabaseAvailable bool
	DatabaseLatency   time.Duration
	RedisAvailable    bool
	RedisLatency      time.Duration
}

// Healthy reports whether every backend answered.
func (h HealthStatus) Healthy() bool {
	return h.DatabaseAvailable && h.RedisAvailable
}

// Health pings the datastore and the rate-limit redis client and never
// returns an error; unreachable backends are reported as unavailable.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.store == nil {
		return HealthStatus{}
	}

	var h HealthStatus
	start := time.Now()
	if err := e.store.Ping(ctx); err == nil {
		h.DatabaseAvailable = true
		h.DatabaseLatency = time.Since(start)
	} else {
		e.log.Warn().Err(err).Msg("datastore ping failed")
	}

	if e.redis != nil {
		start = time.Now()
		if err := e.redis.Ping(ctx).Err(); err == nil {
			h.RedisAvailable = true
			h.RedisLatency = time.Since(start)
		} else {
			e.log.Warn().Err(err).Msg("redis ping failed")
		}
	}
	return h
}

// ActiveSessionCount returns how many devices of the caller hold an active
// session.
func (e *Engine) ActiveSessionCount(ctx context.Context, p Principal) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}

	var n int
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := e.loadActiveUser(ctx, tx, p); err != nil {
			return err
		}
		list, err := e.sessions.ListDevices(ctx, tx, p.UserID)
		if err != nil {
			return err
		}
		n = len(list)
		return nil
	})
	if err != nil {
		return 0, e.fail(ctx, "active_session_count", err, "user_id", p.UserID)
	}
	return n, nil
}
