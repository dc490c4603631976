// Command finauth-loadtest drives refresh rotation against a finauth engine.
//
// Phase "rotate" has each worker refresh its own sessions one at a time.
// Phase "storm" presents the same refresh token from many goroutines at once
// and checks that at most one of them wins per session.
//
// Run:
//
//	go run ./cmd/finauth-loadtest -users 200 -concurrency 64
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/finauth"
	"github.com/MrEthical07/finauth/mail"
	"github.com/MrEthical07/finauth/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type sessionState struct {
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 200, "number of accounts (one session each) to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers in the rotate phase")
		ops         = flag.Int("ops", 2000, "refreshes in the rotate phase")
		contenders  = flag.Int("contenders", 8, "goroutines presenting the same token in the storm phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "finauth-load", "redis key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *contenders <= 1 {
		fmt.Fprintln(os.Stderr, "users, concurrency and ops must be > 0; contenders must be > 1")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := finauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte(strings.Repeat("l", 32))
	cfg.Password.BcryptCost = password.MinBcryptCost
	cfg.Store.RedisPrefix = *prefix
	cfg.Store.MaxTxRetries = 4 * *contenders
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := finauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithLogger(quiet).
		WithMailer(mail.NewLogMailer(quiet)).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]sessionState, *users)
	fmt.Printf("seeding %d accounts...\n", *users)
	startSeed := time.Now()
	for i := range states {
		res, err := engine.SignUp(ctx, finauth.SignUpInput{
			Email:    fmt.Sprintf("load-%d@example.com", i),
			Password: "load-test-password",
		}, finauth.RequestMeta{UserAgent: "finauth-loadtest"})
		if err != nil {
			fmt.Fprintf(os.Stderr, "sign-up failed: %v\n", err)
			os.Exit(1)
		}
		states[i].refresh = res.Tokens.RefreshToken
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	rotateStats := runRotatePhase(ctx, engine, states, *ops, *concurrency)
	storm := runStormPhase(ctx, engine, states, *contenders)

	fmt.Println("---- results ----")
	printStats("rotate", rotateStats)
	fmt.Printf("storm: sessions=%d winners=%d losers=%d other_errors=%d double_wins=%d\n",
		storm.sessions, storm.winners, storm.losers, storm.other, storm.doubleWins)

	snap := engine.MetricsSnapshot()
	fmt.Printf("metrics: refresh_success=%d refresh_failure=%d reuse_detected=%d\n",
		snap.Counters[finauth.MetricRefreshSuccess],
		snap.Counters[finauth.MetricRefreshFailure],
		snap.Counters[finauth.MetricRefreshReuseDetected],
	)

	if storm.doubleWins > 0 {
		fmt.Fprintln(os.Stderr, "FAIL: a refresh token was rotated more than once")
		os.Exit(1)
	}
}

func runRotatePhase(ctx context.Context, engine *finauth.Engine, states []sessionState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[i%len(states)]

				state.mu.Lock()
				t0 := time.Now()
				pair, err := engine.Refresh(ctx, state.refresh, finauth.RequestMeta{})
				d := time.Since(t0)
				if err == nil {
					state.refresh = pair.RefreshToken
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type stormStats struct {
	sessions   int
	winners    int64
	losers     int64
	other      int64
	doubleWins int64
}

// runStormPhase fires contenders concurrent refreshes of the same token for
// every session. A loser sees the token as already used, which also revokes
// the session, so each session is stormed once.
func runStormPhase(ctx context.Context, engine *finauth.Engine, states []sessionState, contenders int) stormStats {
	var s stormStats
	s.sessions = len(states)

	for i := range states {
		tok := states[i].refresh
		var (
			wg   sync.WaitGroup
			wins int64
			gate = make(chan struct{})
		)
		for c := 0; c < contenders; c++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-gate
				_, err := engine.Refresh(ctx, tok, finauth.RequestMeta{})
				switch {
				case err == nil:
					atomic.AddInt64(&wins, 1)
				case errors.Is(err, finauth.ErrRefreshTokenRevoked):
					atomic.AddInt64(&s.losers, 1)
				default:
					atomic.AddInt64(&s.other, 1)
				}
			}()
		}
		close(gate)
		wg.Wait()

		s.winners += wins
		if wins > 1 {
			s.doubleWins++
		}
	}
	return s
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
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
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
