package limiters

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/phoneauth/internal/rate"
)

var (
	// ErrCooldown is returned when a target requests a new challenge before
	// the min-interval has elapsed.
	ErrCooldown = errors.New("challenge cooldown active")
	// ErrHourlyCap is returned when a target exhausted its rolling-hour budget.
	ErrHourlyCap = errors.New("challenge hourly cap reached")
	// ErrVerifyThrottled is returned when a target submitted too many codes.
	ErrVerifyThrottled = errors.New("verification attempts throttled")
)

const (
	opChallengeCooldown = "otp_cooldown"
	opChallengeHourly   = "otp_hourly"
	opVerify            = "otp_verify"
)

// ChallengeConfig holds the challenge request policy. A zero Cooldown or
// HourlyMax disables that policy.
type ChallengeConfig struct {
	Cooldown     time.Duration
	HourlyWindow time.Duration
	HourlyMax    int
}

// ChallengeLimiter gates challenge creation per target.
type ChallengeLimiter struct {
	limiter *rate.Limiter
	config  ChallengeConfig
}

// NewChallengeLimiter creates a [ChallengeLimiter]. A zero HourlyWindow
// defaults to one hour.
func NewChallengeLimiter(limiter *rate.Limiter, cfg ChallengeConfig) *ChallengeLimiter {
	if cfg.HourlyWindow <= 0 {
		cfg.HourlyWindow = time.Hour
	}
	return &ChallengeLimiter{
		limiter: limiter,
		config:  cfg,
	}
}

// Check applies the cooldown and then the hourly cap for target. The
// returned decision belongs to the policy that denied the request, or to the
// hourly cap when both allowed it. Errors are [ErrCooldown], [ErrHourlyCap],
// or a wrapped [rate.ErrUnavailable].
func (l *ChallengeLimiter) Check(ctx context.Context, target string) (rate.Decision, error) {
	if l == nil {
		return rate.Decision{Allowed: true}, nil
	}

	if l.config.Cooldown > 0 {
		d, err := l.limiter.Check(ctx, l.limiter.Key(opChallengeCooldown, target), l.config.Cooldown, 1)
		if err != nil {
			return rate.Decision{}, err
		}
		if !d.Allowed {
			return d, ErrCooldown
		}
	}

	if l.config.HourlyMax > 0 {
		d, err := l.limiter.Check(ctx, l.limiter.Key(opChallengeHourly, target), l.config.HourlyWindow, l.config.HourlyMax)
		if err != nil {
			return rate.Decision{}, err
		}
		if !d.Allowed {
			return d, ErrHourlyCap
		}
		return d, nil
	}

	return rate.Decision{Allowed: true}, nil
}

// Cooldown reports how long a caller must wait after an accepted request
// before the next one can pass.
func (l *ChallengeLimiter) Cooldown() time.Duration {
	if l == nil {
		return 0
	}
	return l.config.Cooldown
}
