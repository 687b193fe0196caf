package challenge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/phoneauth/internal/limiters"
	"github.com/MrEthical07/phoneauth/internal/rate"
	"github.com/MrEthical07/phoneauth/internal/retry"
	"github.com/MrEthical07/phoneauth/internal/store"
	"github.com/MrEthical07/phoneauth/internal/store/memstore"
	"github.com/MrEthical07/phoneauth/provider"
	"github.com/MrEthical07/phoneauth/provider/local"
)

var phoneTarget = store.Target{CountryCode: "1", Phone: "5551234567"}

type harness struct {
	mr    *miniredis.Miniredis
	st    *memstore.Store
	codes *local.Provider
	m     *Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rl := rate.New(rdb, "rl")
	issue := limiters.NewChallengeLimiter(rl, limiters.ChallengeConfig{Cooldown: 30 * time.Second, HourlyMax: 5})
	throttle := limiters.NewVerifyLimiter(rl, limiters.VerifyConfig{Window: 15 * time.Minute, MaxAttempts: 10})

	codes := local.New()
	adapter := provider.NewAdapter(provider.AdapterConfig{
		Timeout: time.Second,
		Retry:   retry.Policy{MaxAttempts: 1},
	}, codes, codes, nil)

	st := memstore.New()
	m := New(st, issue, throttle, adapter, Config{TTL: 10 * time.Minute, MaxAttempts: 5, ResendAfter: 30 * time.Second}, zerolog.Nop())
	return &harness{mr: mr, st: st, codes: codes, m: m}
}

// redeem commits charged attempts the way the engine does.
func (h *harness) redeem(target store.Target, typ store.ChallengeType, code string) (*store.Challenge, error) {
	var (
		out      *store.Challenge
		redeemed error
	)
	err := h.st.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		c, err := h.m.Redeem(ctx, tx, target, typ, code)
		var attempt *AttemptError
		if errors.As(err, &attempt) {
			redeemed = err
			return nil
		}
		out = c
		return err
	})
	if redeemed != nil {
		return nil, redeemed
	}
	return out, err
}

func TestCreatePersistsChallenge(t *testing.T) {
	h := newHarness(t)
	before := time.Now()

	created, err := h.m.Create(context.Background(), phoneTarget, store.ChallengePhoneAuth, ClientMeta{IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.RetryAfter != 30*time.Second {
		t.Fatalf("unexpected retry-after %s", created.RetryAfter)
	}

	rows := h.st.Challenges()
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	c := rows[0]
	if c.Attempts != 0 || c.MaxAttempts != 5 || c.ProviderRef == "" || c.ClientIP != "10.0.0.1" {
		t.Fatalf("unexpected row %+v", c)
	}
	if ttl := c.ExpiresAt.Sub(before); ttl < 10*time.Minute || ttl > 10*time.Minute+time.Second {
		t.Fatalf("expected 10 minute expiry, got %s", ttl)
	}
}

func TestCreateProviderFailureLeavesNoRow(t *testing.T) {
	h := newHarness(t)
	h.codes.FailNext(errors.New("sms gateway down"))

	_, err := h.m.Create(context.Background(), phoneTarget, store.ChallengePhoneAuth, ClientMeta{})
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if n := len(h.st.Challenges()); n != 0 {
		t.Fatalf("expected no rows, got %d", n)
	}

	// The failed attempt still consumed the cooldown.
	_, err = h.m.Create(context.Background(), phoneTarget, store.ChallengePhoneAuth, ClientMeta{})
	var limit *LimitError
	if !errors.As(err, &limit) || !errors.Is(err, limiters.ErrCooldown) {
		t.Fatalf("expected cooldown, got %v", err)
	}
}

func TestCreateHourlyCap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := h.m.Create(ctx, phoneTarget, store.ChallengePhoneAuth, ClientMeta{}); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		h.mr.FastForward(31 * time.Second)
	}

	_, err := h.m.Create(ctx, phoneTarget, store.ChallengePhoneAuth, ClientMeta{})
	var limit *LimitError
	if !errors.As(err, &limit) || !errors.Is(err, limiters.ErrHourlyCap) {
		t.Fatalf("expected hourly cap, got %v", err)
	}
	if limit.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %s", limit.RetryAfter)
	}
}

func TestRedeemWrongCodesThenCorrect(t *testing.T) {
	h := newHarness(t)
	if _, err := h.m.Create(context.Background(), phoneTarget, store.ChallengePhoneAuth, ClientMeta{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	code := h.codes.LastCode(phoneTarget.E164())

	for i := 1; i <= 4; i++ {
		_, err := h.redeem(phoneTarget, store.ChallengePhoneAuth, "wrong")
		var attempt *AttemptError
		if !errors.As(err, &attempt) || !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("attempt %d: expected ErrInvalidCode, got %v", i, err)
		}
		if attempt.Attempts != i {
			t.Fatalf("attempt %d: counter at %d", i, attempt.Attempts)
		}
	}

	c, err := h.redeem(phoneTarget, store.ChallengePhoneAuth, code)
	if err != nil {
		t.Fatalf("correct code: %v", err)
	}
	if c.Attempts != 5 || !c.Verified || c.VerifiedAt == nil {
		t.Fatalf("unexpected challenge %+v", c)
	}

	if _, err := h.redeem(phoneTarget, store.ChallengePhoneAuth, code); !errors.Is(err, ErrNoActiveChallenge) {
		t.Fatalf("second redemption: expected ErrNoActiveChallenge, got %v", err)
	}
}

func TestRedeemAttemptsExhausted(t *testing.T) {
	h := newHarness(t)
	if _, err := h.m.Create(context.Background(), phoneTarget, store.ChallengePhoneAuth, ClientMeta{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	code := h.codes.LastCode(phoneTarget.E164())

	for i := 0; i < 5; i++ {
		if _, err := h.redeem(phoneTarget, store.ChallengePhoneAuth, "wrong"); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("attempt %d: expected ErrInvalidCode, got %v", i+1, err)
		}
	}
	if _, err := h.redeem(phoneTarget, store.ChallengePhoneAuth, code); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("expected ErrAttemptsExceeded, got %v", err)
	}
	if got := h.st.Challenges()[0].Attempts; got != 5 {
		t.Fatalf("exhausted challenge must not be charged further, attempts=%d", got)
	}
}

func TestRedeemExpiredIsNotCharged(t *testing.T) {
	h := newHarness(t)
	if _, err := h.m.Create(context.Background(), phoneTarget, store.ChallengePhoneAuth, ClientMeta{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	h.m.now = func() time.Time { return time.Now().Add(11 * time.Minute) }

	if _, err := h.redeem(phoneTarget, store.ChallengePhoneAuth, "123456"); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
	if got := h.st.Challenges()[0].Attempts; got != 0 {
		t.Fatalf("expired redemption must not charge, attempts=%d", got)
	}
}

func TestRedeemUsesNewestChallenge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.m.Create(ctx, phoneTarget, store.ChallengePhoneAuth, ClientMeta{}); err != nil {
		t.Fatalf("create first: %v", err)
	}
	oldCode := h.codes.LastCode(phoneTarget.E164())
	h.mr.FastForward(31 * time.Second)
	h.m.now = func() time.Time { return time.Now().Add(time.Second) }
	if _, err := h.m.Create(ctx, phoneTarget, store.ChallengePhoneAuth, ClientMeta{}); err != nil {
		t.Fatalf("create second: %v", err)
	}
	newCode := h.codes.LastCode(phoneTarget.E164())
	if oldCode == newCode {
		t.Skip("random codes collided")
	}

	if _, err := h.redeem(phoneTarget, store.ChallengePhoneAuth, oldCode); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("superseded code: expected ErrInvalidCode, got %v", err)
	}
	if _, err := h.redeem(phoneTarget, store.ChallengePhoneAuth, newCode); err != nil {
		t.Fatalf("newest code: %v", err)
	}
	if _, err := h.redeem(phoneTarget, store.ChallengePhoneAuth, oldCode); !errors.Is(err, ErrNoActiveChallenge) {
		t.Fatalf("older challenge must stay superseded, got %v", err)
	}
}

func TestRedeemProviderOutageStillCharges(t *testing.T) {
	h := newHarness(t)
	if _, err := h.m.Create(context.Background(), phoneTarget, store.ChallengePhoneAuth, ClientMeta{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	h.codes.FailNext(errors.New("timeout"))

	_, err := h.redeem(phoneTarget, store.ChallengePhoneAuth, "123456")
	var attempt *AttemptError
	if !errors.As(err, &attempt) || !errors.Is(err, provider.ErrUnavailable) {
		t.Fatalf("expected charged ErrUnavailable, got %v", err)
	}
	if got := h.st.Challenges()[0].Attempts; got != 1 {
		t.Fatalf("expected attempt charged, attempts=%d", got)
	}
}

func TestEmailChallengeUsesDigest(t *testing.T) {
	h := newHarness(t)
	target := store.Target{UserID: "u1", Email: "a@example.com"}

	if _, err := h.m.Create(context.Background(), target, store.ChallengeEmailVerify, ClientMeta{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	code := h.codes.LastCode("a@example.com")
	row := h.st.Challenges()[0]
	if row.ProviderMeta[metaCodeDigest] == "" || row.ProviderMeta[metaCodeDigest] == code {
		t.Fatal("email code must be stored as a digest")
	}

	if _, err := h.redeem(target, store.ChallengeEmailVerify, "000000x"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if _, err := h.redeem(target, store.ChallengeEmailVerify, code); err != nil {
		t.Fatalf("correct email code: %v", err)
	}
}

func TestConcurrentRedemptionSingleWinner(t *testing.T) {
	h := newHarness(t)
	if _, err := h.m.Create(context.Background(), phoneTarget, store.ChallengePhoneAuth, ClientMeta{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	code := h.codes.LastCode(phoneTarget.E164())

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		losers  int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.redeem(phoneTarget, store.ChallengePhoneAuth, code)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrNoActiveChallenge):
				losers++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if winners != 1 || losers != n-1 {
		t.Fatalf("expected 1 winner and %d losers, got %d/%d", n-1, winners, losers)
	}
}
