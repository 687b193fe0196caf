package limiters

import (
	"context"
	"time"

	"github.com/MrEthical07/phoneauth/internal/rate"
)

// VerifyConfig holds the redemption throttle. A zero MaxAttempts disables it.
type VerifyConfig struct {
	Window      time.Duration
	MaxAttempts int
}

// VerifyLimiter throttles code submissions per target, independently of the
// per-challenge attempt ceiling.
type VerifyLimiter struct {
	limiter *rate.Limiter
	config  VerifyConfig
}

func NewVerifyLimiter(limiter *rate.Limiter, cfg VerifyConfig) *VerifyLimiter {
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	return &VerifyLimiter{
		limiter: limiter,
		config:  cfg,
	}
}

func (l *VerifyLimiter) Check(ctx context.Context, target string) (rate.Decision, error) {
	if l == nil || l.config.MaxAttempts <= 0 {
		return rate.Decision{Allowed: true}, nil
	}

	d, err := l.limiter.Check(ctx, l.limiter.Key(opVerify, target), l.config.Window, l.config.MaxAttempts)
	if err != nil {
		return rate.Decision{}, err
	}
	if !d.Allowed {
		return d, ErrVerifyThrottled
	}
	return d, nil
}
