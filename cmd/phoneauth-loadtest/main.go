// Command phoneauth-loadtest drives concurrent code redemptions, refresh
// rotations, and session lookups against an in-process engine and checks
// that every contended credential has exactly one winner.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	mrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/internal/store/memstore"
	"github.com/MrEthical07/phoneauth/provider/local"
)

const fixedCode = "246810"

func main() {
	var (
		users       = flag.Int("users", 2000, "number of accounts to sign in")
		racers      = flag.Int("racers", 8, "concurrent redeemers per contended credential")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "session lookups in the lookup phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *racers <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, racers, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()
	client, cleanup, err := openRedis(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	engine, err := buildEngine(client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	redeem, pairs := runRedeemPhase(ctx, engine, *users, *racers, *concurrency)
	refresh := runRefreshPhase(ctx, engine, pairs, *racers, *concurrency)
	lookup := runLookupPhase(ctx, engine, pairs, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("redeem", redeem)
	printStats("refresh", refresh)
	printStats("lookup", lookup)

	if redeem.violations > 0 || refresh.violations > 0 {
		fmt.Fprintf(os.Stderr, "single-winner violations: redeem=%d refresh=%d\n", redeem.violations, refresh.violations)
		os.Exit(1)
	}
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func buildEngine(client redis.UniversalClient) (*phoneauth.Engine, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}

	cfg := phoneauth.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = key
	cfg.RateLimit.RedisPrefix = fmt.Sprintf("loadtest:%d", time.Now().UnixNano())
	cfg.RateLimit.Cooldown = 0
	cfg.RateLimit.HourlyMax = 0
	cfg.RateLimit.VerifyMaxAttempts = 0
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	codes := local.New(local.WithFixedCode(fixedCode))
	return phoneauth.New().
		WithConfig(cfg).
		WithStore(memstore.New()).
		WithRedis(client).
		WithSMSProvider(codes).
		Build()
}

type credential struct {
	deviceID string
	access   string
	refresh  string
}

// runRedeemPhase sends one code per account and lets racers redeem it at
// once. Exactly one redemption per account may succeed.
func runRedeemPhase(ctx context.Context, engine *phoneauth.Engine, users, racers, concurrency int) (phaseStats, []credential) {
	var (
		cursor     int64
		failures   int64
		violations int64
		rec        recorder
		creds      = make([]credential, users)
	)

	start := time.Now()
	parallel(concurrency, func(int) {
		for {
			i := int(atomic.AddInt64(&cursor, 1)) - 1
			if i >= users {
				return
			}
			phone := fmt.Sprintf("555%07d", i)
			if _, err := engine.SendCode(ctx, phoneauth.SendCodeRequest{CountryCode: "1", Phone: phone}); err != nil {
				atomic.AddInt64(&failures, 1)
				continue
			}

			var (
				wg      sync.WaitGroup
				winners int64
			)
			deviceID := fmt.Sprintf("device-%d", i)
			for r := 0; r < racers; r++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					t0 := time.Now()
					res, err := engine.VerifyCode(ctx, phoneauth.VerifyCodeRequest{
						CountryCode: "1",
						Phone:       phone,
						Code:        fixedCode,
						Device:      phoneauth.Device{ID: deviceID},
					})
					rec.add(time.Since(t0))
					switch {
					case err == nil:
						if atomic.AddInt64(&winners, 1) == 1 {
							creds[i] = credential{deviceID: deviceID, access: res.Tokens.AccessToken, refresh: res.Tokens.RefreshToken}
						}
					case errors.Is(err, phoneauth.ErrNoActiveChallenge):
					default:
						atomic.AddInt64(&failures, 1)
					}
				}()
			}
			wg.Wait()
			if winners != 1 {
				atomic.AddInt64(&violations, 1)
			}
		}
	})
	return rec.stats(time.Since(start), failures, violations), creds
}

// runRefreshPhase presents every refresh token racers times at once and
// rotates the credential to the single winner.
func runRefreshPhase(ctx context.Context, engine *phoneauth.Engine, creds []credential, racers, concurrency int) phaseStats {
	var (
		cursor     int64
		failures   int64
		violations int64
		rec        recorder
	)

	start := time.Now()
	parallel(concurrency, func(int) {
		for {
			i := int(atomic.AddInt64(&cursor, 1)) - 1
			if i >= len(creds) {
				return
			}
			if creds[i].refresh == "" {
				continue
			}

			var (
				wg      sync.WaitGroup
				winners int64
			)
			for r := 0; r < racers; r++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					t0 := time.Now()
					pair, err := engine.Refresh(ctx, creds[i].refresh)
					rec.add(time.Since(t0))
					switch {
					case err == nil:
						if atomic.AddInt64(&winners, 1) == 1 {
							creds[i].access = pair.AccessToken
							creds[i].refresh = pair.RefreshToken
						}
					case errors.Is(err, phoneauth.ErrRefreshReuse):
					default:
						atomic.AddInt64(&failures, 1)
					}
				}()
			}
			wg.Wait()
			if winners != 1 {
				atomic.AddInt64(&violations, 1)
			}
		}
	})
	return rec.stats(time.Since(start), failures, violations)
}

func runLookupPhase(ctx context.Context, engine *phoneauth.Engine, creds []credential, ops, concurrency int) phaseStats {
	var (
		cursor   int64
		failures int64
		rec      recorder
	)

	start := time.Now()
	parallel(concurrency, func(worker int) {
		r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
		for {
			if int(atomic.AddInt64(&cursor, 1)) > ops {
				return
			}
			c := creds[r.Intn(len(creds))]
			t0 := time.Now()
			info, err := engine.CurrentSession(ctx, c.access)
			rec.add(time.Since(t0))
			if err != nil || info == nil {
				atomic.AddInt64(&failures, 1)
			}
		}
	})
	return rec.stats(time.Since(start), failures, 0)
}

func parallel(n int, fn func(worker int)) {
	var wg sync.WaitGroup
	for w := 0; w < n; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			fn(worker)
		}(w)
	}
	wg.Wait()
}

type recorder struct {
	mu      sync.Mutex
	samples []time.Duration
}

func (r *recorder) add(d time.Duration) {
	r.mu.Lock()
	r.samples = append(r.samples, d)
	r.mu.Unlock()
}

type phaseStats struct {
	total      time.Duration
	ops        int
	failures   int64
	violations int64
	p50        time.Duration
	p95        time.Duration
	p99        time.Duration
	opsPerS    float64
}

func (r *recorder) stats(total time.Duration, failures, violations int64) phaseStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	samples := r.samples
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures, violations: violations}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:      total,
		ops:        len(samples),
		failures:   failures,
		violations: violations,
		p50:        percentile(samples, 50),
		p95:        percentile(samples, 95),
		p99:        percentile(samples, 99),
		opsPerS:    float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d violations=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.violations,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
