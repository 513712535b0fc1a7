// Command authclient-loadtest drives bursts of concurrent 401s through a set
// of clients that share a Redis session backend, and reports how many token
// refreshes the server actually saw.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authclient"
	"github.com/MrEthical07/authclient/authtest"
	"github.com/MrEthical07/authclient/storage"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	username = "loadtest"
	password = "loadtest-password-123"
)

func main() {
	var (
		clients      = flag.Int("clients", 8, "number of independent client sessions")
		concurrency  = flag.Int("concurrency", 64, "concurrent requests per client in each storm")
		rounds       = flag.Int("rounds", 20, "number of expire-and-storm rounds")
		refreshDelay = flag.Duration("refresh-delay", 20*time.Millisecond, "artificial latency of the refresh endpoint")
		coalesce     = flag.Bool("coalesce", true, "share one refresh between concurrent 401s")
		redisAddr    = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix       = flag.String("prefix", "lt", "session key prefix")
	)
	flag.Parse()

	if *clients <= 0 || *concurrency <= 0 || *rounds <= 0 {
		fmt.Fprintln(os.Stderr, "clients, concurrency, and rounds must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		rdb     redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = rdb.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	srv := authtest.NewServer(authtest.WithUser(username, password))
	defer srv.Close()
	srv.SetRefreshDelay(*refreshDelay)

	pool := make([]*authclient.Client, *clients)
	fmt.Printf("signing in %d clients...\n", *clients)
	startLogin := time.Now()
	for i := range pool {
		c, err := newClient(ctx, srv.URL, storage.NewRedis(rdb, fmt.Sprintf("%s:%d", *prefix, i), 0), *coalesce)
		if err != nil {
			fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
			os.Exit(1)
		}
		defer c.Close()
		if _, err := c.Login(ctx, map[string]string{"username": username, "password": password}); err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		pool[i] = c
	}
	fmt.Printf("signed in in %s\n", time.Since(startLogin).Round(time.Millisecond))

	steady := runStormPhase(ctx, pool, *concurrency, *rounds, nil)
	refreshBefore := srv.RefreshCalls()
	storm := runStormPhase(ctx, pool, *concurrency, *rounds, srv.ExpireAccessTokens)
	refreshes := srv.RefreshCalls() - refreshBefore

	var coalesced, recovered uint64
	for _, c := range pool {
		counters := c.MetricsSnapshot().Counters
		coalesced += counters[authclient.MetricRefreshCoalesced]
		recovered += counters[authclient.MetricAuthRecovered]
	}

	fmt.Println("---- results ----")
	printStats("steady", steady)
	printStats("storm", storm)
	fmt.Printf("refresh calls=%d (ideal %d) recovered=%d coalesced=%d\n",
		refreshes, *clients**rounds, recovered, coalesced)
}

func newClient(ctx context.Context, baseURL string, store storage.Storage, coalesce bool) (*authclient.Client, error) {
	cfg := authclient.DefaultConfig()
	cfg.Refresh.Coalesce = coalesce
	cfg.Session.RestoreOnBuild = false
	return authclient.New().
		WithConfig(cfg).
		WithBaseURL(baseURL).
		WithStorage(store).
		WithMetricsEnabled(true).
		Build(ctx)
}

// runStormPhase runs rounds of concurrent requests against every client.
// before, when set, runs at the start of each round.
func runStormPhase(ctx context.Context, pool []*authclient.Client, concurrency, rounds int, before func()) phaseStats {
	var (
		failures  int64
		latencies = make([]time.Duration, 0, len(pool)*concurrency*rounds)
		mu        sync.Mutex
		total     time.Duration
	)

	for r := 0; r < rounds; r++ {
		if before != nil {
			before()
		}
		var wg sync.WaitGroup
		gate := make(chan struct{})
		start := time.Now()
		for _, c := range pool {
			for w := 0; w < concurrency; w++ {
				wg.Add(1)
				go func(c *authclient.Client) {
					defer wg.Done()
					<-gate
					t0 := time.Now()
					_, err := c.Get(ctx, authtest.PathProtected)
					d := time.Since(t0)
					if err != nil {
						atomic.AddInt64(&failures, 1)
					}
					mu.Lock()
					latencies = append(latencies, d)
					mu.Unlock()
				}(c)
			}
		}
		close(gate)
		wg.Wait()
		total += time.Since(start)
	}
	return computeStats(total, latencies, failures)
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
	fmt.Printf("%s: requests=%d failures=%d total=%s req/sec=%.0f p50=%s p95=%s p99=%s\n",
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
