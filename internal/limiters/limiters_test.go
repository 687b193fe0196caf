package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/phoneauth/internal/rate"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRate(t *testing.T) (*miniredis.Miniredis, *rate.Limiter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, rate.New(rdb, "rl")
}

func TestChallengeLimiterCooldownBeforeHourly(t *testing.T) {
	mr, rl := newTestRate(t)
	l := NewChallengeLimiter(rl, ChallengeConfig{Cooldown: 30 * time.Second, HourlyMax: 5})
	ctx := context.Background()

	if _, err := l.Check(ctx, "+15551234567"); err != nil {
		t.Fatalf("first request failed: %v", err)
	}

	d, err := l.Check(ctx, "+15551234567")
	if !errors.Is(err, ErrCooldown) {
		t.Fatalf("expected ErrCooldown, got %v", err)
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %v", d.RetryAfter)
	}

	// The cooldown denial must not have consumed hourly budget.
	count, err := rl.Peek(ctx, rl.Key(opChallengeHourly, "+15551234567"))
	if err != nil {
		t.Fatalf("peek failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected hourly count 1, got %d", count)
	}

	mr.FastForward(31 * time.Second)
	if _, err := l.Check(ctx, "+15551234567"); err != nil {
		t.Fatalf("request after cooldown failed: %v", err)
	}
}

func TestChallengeLimiterHourlyCap(t *testing.T) {
	mr, rl := newTestRate(t)
	l := NewChallengeLimiter(rl, ChallengeConfig{Cooldown: 30 * time.Second, HourlyMax: 5})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := l.Check(ctx, "target"); err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
		mr.FastForward(31 * time.Second)
	}

	d, err := l.Check(ctx, "target")
	if !errors.Is(err, ErrHourlyCap) {
		t.Fatalf("expected ErrHourlyCap, got %v", err)
	}
	if d.RetryAfterSeconds() <= 0 {
		t.Fatalf("expected positive retry-after, got %v", d.RetryAfter)
	}
}

func TestChallengeLimiterTargetsAreIndependent(t *testing.T) {
	_, rl := newTestRate(t)
	l := NewChallengeLimiter(rl, ChallengeConfig{Cooldown: time.Minute, HourlyMax: 1})
	ctx := context.Background()

	if _, err := l.Check(ctx, "a"); err != nil {
		t.Fatalf("target a failed: %v", err)
	}
	if _, err := l.Check(ctx, "b"); err != nil {
		t.Fatalf("target b failed: %v", err)
	}
}

func TestChallengeLimiterUnavailable(t *testing.T) {
	mr, rl := newTestRate(t)
	l := NewChallengeLimiter(rl, ChallengeConfig{Cooldown: time.Minute, HourlyMax: 5})
	mr.Close()

	if _, err := l.Check(context.Background(), "a"); !errors.Is(err, rate.ErrUnavailable) {
		t.Fatalf("expected rate.ErrUnavailable, got %v", err)
	}
}

func TestVerifyLimiter(t *testing.T) {
	_, rl := newTestRate(t)
	l := NewVerifyLimiter(rl, VerifyConfig{Window: time.Minute, MaxAttempts: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := l.Check(ctx, "a"); err != nil {
			t.Fatalf("attempt %d failed: %v", i+1, err)
		}
	}
	if _, err := l.Check(ctx, "a"); !errors.Is(err, ErrVerifyThrottled) {
		t.Fatalf("expected ErrVerifyThrottled, got %v", err)
	}
}

func TestNilLimitersAllow(t *testing.T) {
	var cl *ChallengeLimiter
	if d, err := cl.Check(context.Background(), "a"); err != nil || !d.Allowed {
		t.Fatalf("nil challenge limiter must allow, got %v %v", d, err)
	}
	var vl *VerifyLimiter
	if d, err := vl.Check(context.Background(), "a"); err != nil || !d.Allowed {
		t.Fatalf("nil verify limiter must allow, got %v %v", d, err)
	}
}
