package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

var errConfirmRejected = errors.New("confirm rejected")

// sessionRig is one manager plus counters shared with its fake collaborators.
type sessionRig struct {
	manager  *goSession.Manager
	branches []goSession.Branch
	years    []goSession.AcademicYear

	inFlight  atomic.Int32
	overlaps  atomic.Int64
	violation atomic.Int64
}

// enter records a collaborator call; two concurrent calls on one rig mean
// the transition slot admitted two transitions.
func (r *sessionRig) enter() func() {
	if r.inFlight.Add(1) > 1 {
		r.overlaps.Add(1)
	}
	return func() { r.inFlight.Add(-1) }
}

func main() {
	var (
		sessions    = pflag.Int("sessions", 64, "number of independent session managers")
		concurrency = pflag.Int("concurrency", 128, "number of concurrent workers")
		ops         = pflag.Int("ops", 50000, "total operations")
		failRate    = pflag.Float64("fail-rate", 0.2, "probability a branch confirmation or refresh fails")
		latency     = pflag.Duration("latency", 2*time.Millisecond, "maximum simulated collaborator latency")
		redisAddr   = pflag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = pflag.String("prefix", "gs-stress", "redis key prefix")
		verbose     = pflag.BoolP("verbose", "v", false, "log every session event")
	)
	pflag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
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
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	logger := zerolog.Nop()
	if *verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	rigs := make([]*sessionRig, *sessions)
	fmt.Printf("building %d sessions...\n", *sessions)
	for i := range rigs {
		rig, err := buildRig(ctx, client, *prefix, i, *failRate, *latency, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "build session %d: %v\n", i, err)
			os.Exit(1)
		}
		rigs[i] = rig
	}
	defer func() {
		for _, r := range rigs {
			r.manager.Close()
		}
	}()

	stats := runPhase(ctx, rigs, *ops, *concurrency)

	var overlaps, violations int64
	for _, r := range rigs {
		checkInvariants(r)
		overlaps += r.overlaps.Load()
		violations += r.violation.Load()
	}
	metrics := rigs[0].manager.MetricsSnapshot()

	fmt.Println("---- results ----")
	printStats("mixed", stats)
	for kind, c := range stats.outcomes {
		fmt.Printf("  %-28s %d\n", kind, c)
	}
	fmt.Printf("slot overlaps=%d invariant violations=%d\n", overlaps, violations)
	fmt.Printf("session[0] branch switches ok=%d failed=%d rejected=%d\n",
		metrics.Counters[goSession.MetricBranchSwitchSuccess],
		metrics.Counters[goSession.MetricBranchSwitchFailure],
		metrics.Counters[goSession.MetricBranchSwitchRejected],
	)

	if overlaps > 0 || violations > 0 {
		os.Exit(1)
	}
}

func buildRig(ctx context.Context, client redis.UniversalClient, prefix string, i int, failRate float64, latency time.Duration, logger zerolog.Logger) (*sessionRig, error) {
	rig := &sessionRig{}
	rnd := rand.New(rand.NewSource(int64(i) + 1))
	var rndMu sync.Mutex
	roll := func() (time.Duration, bool) {
		rndMu.Lock()
		defer rndMu.Unlock()
		var d time.Duration
		if latency > 0 {
			d = time.Duration(rnd.Int63n(int64(latency)))
		}
		return d, rnd.Float64() < failRate
	}

	cfg := goSession.DefaultConfig()
	cfg.Store.RedisPrefix = prefix
	cfg.Store.DeviceID = fmt.Sprintf("device-%d", i)
	cfg.Metrics.EnableLatencyHistograms = true

	m, err := goSession.New().
		WithConfig(cfg).
		WithRedis(client).
		WithLogger(logger).
		WithBranchConfirmer(goSession.BranchConfirmerFunc(func(ctx context.Context, _ int64) error {
			defer rig.enter()()
			d, fail := roll()
			time.Sleep(d)
			if fail {
				return errConfirmRejected
			}
			return nil
		})).
		WithTokenRefresher(goSession.TokenRefresherFunc(func(ctx context.Context, rt string) (goSession.TokenPair, error) {
			defer rig.enter()()
			d, fail := roll()
			time.Sleep(d)
			if fail {
				return goSession.TokenPair{}, errConfirmRejected
			}
			return goSession.TokenPair{
				Token:         fmt.Sprintf("tok-%d-%d", i, time.Now().UnixNano()),
				RefreshToken:  rt,
				TokenExpireAt: time.Now().Add(time.Hour).UnixMilli(),
			}, nil
		})).
		Build(ctx)
	if err != nil {
		return nil, err
	}
	rig.manager = m

	yes := true
	for b := 0; b < 4; b++ {
		br := goSession.Branch{BranchID: int64(b + 1), BranchName: fmt.Sprintf("branch-%d", b+1), BranchType: goSession.BranchSchool}
		if b == 0 {
			br.IsDefault = &yes
		}
		rig.branches = append(rig.branches, br)
	}
	for y := 0; y < 3; y++ {
		rig.years = append(rig.years, goSession.AcademicYear{
			AcademicYearID: int64(2024 + y),
			YearName:       fmt.Sprintf("%d-%d", 2024+y, 2025+y),
			IsActive:       y == 2,
		})
	}

	if authErr := m.Login(ctx, goSession.LoginInput{
		User:          goSession.User{UserID: int64(i + 1), FullName: "stress", Role: "BRANCH_ADMIN", InstituteID: 1},
		Branches:      rig.branches,
		AcademicYears: rig.years,
		Token:         fmt.Sprintf("tok-%d", i),
		RefreshToken:  fmt.Sprintf("ref-%d", i),
		TokenExpireAt: time.Now().Add(time.Hour).UnixMilli(),
	}); authErr != nil {
		return nil, authErr
	}
	return rig, nil
}

type phaseStats struct {
	total    time.Duration
	ops      int
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
	outcomes map[string]int64
}

func runPhase(ctx context.Context, rigs []*sessionRig, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		latencies = make([]time.Duration, 0, ops)
		outcomes  = map[string]int64{}
		mu        sync.Mutex
	)

	record := func(d time.Duration, outcome string) {
		mu.Lock()
		latencies = append(latencies, d)
		outcomes[outcome]++
		mu.Unlock()
	}

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				rig := rigs[r.Intn(len(rigs))]

				t0 := time.Now()
				var outcome string
				switch r.Intn(3) {
				case 0:
					outcome = "branch:" + code(rig.manager.SwitchBranch(ctx, rig.branches[r.Intn(len(rig.branches))]))
				case 1:
					outcome = "year:" + code(rig.manager.SwitchAcademicYear(ctx, rig.years[r.Intn(len(rig.years))]))
				default:
					if rig.manager.RefreshTokenAsync(ctx) {
						outcome = "refresh:ok"
					} else {
						outcome = "refresh:rejected_or_failed"
					}
				}
				record(time.Since(t0), outcome)
				checkInvariants(rig)
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, outcomes)
}

func code(e *goSession.AuthError) string {
	if e == nil {
		return "ok"
	}
	return string(e.Code)
}

// checkInvariants verifies the current branch is a member of the branch
// list and authentication matches the token.
func checkInvariants(r *sessionRig) {
	st := r.manager.Snapshot()
	if st.CurrentBranch != nil {
		found := false
		for _, b := range st.Branches {
			if b.BranchID == st.CurrentBranch.BranchID {
				found = true
				break
			}
		}
		if !found {
			r.violation.Add(1)
		}
	}
	if st.IsAuthenticated() != (st.User != nil && st.Token.TokenExpireAt > st.Now && st.Token.Token != "") {
		r.violation.Add(1)
	}
}

func computeStats(total time.Duration, samples []time.Duration, outcomes map[string]int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, outcomes: outcomes}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
		outcomes: outcomes,
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
	fmt.Printf("%s: ops=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
