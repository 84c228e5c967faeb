// Command segbench drives a concurrent allocate/free workload against a
// segalloc.Allocator and reports throughput, latency and large-allocation
// success-ratio statistics, reproducing the allocator's original C test
// harness as an external, library-consuming workload generator.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kcorebyte/segalloc"
)

const (
	sixteenB  = 16
	oneKB     = 1024
	fiftyKB   = 51200
	hundredKB = 102400
)

var log = logrus.New()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type runOptions struct {
	workers     int
	opsPerWork  int
	capacity    int
	largeThr    int
	waitMs      int
	seed        int64
	verbose     bool
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "segbench",
		Short: "Benchmark the segalloc fixed-capacity allocator under concurrent load",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.verbose {
				log.SetLevel(logrus.DebugLevel)
				segalloc.SetTrace(true)
				segalloc.SetLogger(log)
			}
			return run(opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.workers, "workers", 16, "number of concurrent worker goroutines")
	flags.IntVar(&opts.opsPerWork, "ops", 100, "allocate/free cycles per worker")
	flags.IntVar(&opts.capacity, "capacity", segalloc.DefaultCapacity, "backing region size in bytes")
	flags.IntVar(&opts.largeThr, "large-threshold", segalloc.DefaultLargeThreshold, "payload size above which requests route to the large segment")
	flags.IntVar(&opts.waitMs, "wait-timeout-ms", int(segalloc.DefaultWaitTimeout/time.Millisecond), "per-segment blocking wait timeout, in milliseconds")
	flags.Int64Var(&opts.seed, "seed", 0, "PRNG seed; 0 picks one from the current time")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable allocator trace logging")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics at http://<addr>/metrics for the duration of the run")

	cmd.Flags().SortFlags = false

	return cmd
}

// metrics mirrors the original harness's metrics_mutex-guarded counters,
// reimplemented as lock-free atomics plus a small set of Prometheus
// counters so a run can optionally be scraped mid-flight.
type metrics struct {
	allocations     int64
	successes       int64
	frees           int64
	latencyNanos    int64
	largeAttempts   int64
	largeSuccesses  int64
	largeLatencyNS  int64
	largeLatencyObs int64

	promAllocations prometheus.Counter
	promSuccesses   prometheus.Counter
	promLatency     prometheus.Histogram
}

// newMetrics builds the counters/histogram and registers them with reg, so
// a registry backed by an HTTP handler (see serveMetrics) actually exposes
// them; an unregistered collector would never be reachable by a scrape.
func newMetrics(reg *prometheus.Registry) *metrics {
	m := &metrics{
		promAllocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "segbench_allocations_total",
			Help: "Total Allocate calls issued by the benchmark.",
		}),
		promSuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "segbench_allocation_successes_total",
			Help: "Total Allocate calls that returned a non-nil pointer.",
		}),
		promLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "segbench_allocate_latency_seconds",
			Help:    "Allocate call latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.promAllocations, m.promSuccesses, m.promLatency)
	return m
}

// serveMetrics starts an HTTP server exposing reg at /metrics and returns a
// shutdown function the caller must invoke once the run completes. Serving
// nothing (addr == "") is a no-op whose shutdown function does nothing.
func serveMetrics(addr string, reg *prometheus.Registry) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("segbench: metrics server stopped unexpectedly")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("segbench: metrics server shutdown error")
		}
	}
}

// chooseSize draws a request size from the same 90/5/5 distribution as the
// original harness's choose_size: mostly small, occasionally mid, rarely
// large.
func chooseSize(rng *rand.Rand) int {
	p := rng.Float64()
	switch {
	case p < 0.90:
		return sixteenB + rng.Intn(oneKB-sixteenB+1)
	case p < 0.95:
		return oneKB + rng.Intn(fiftyKB-oneKB+1)
	default:
		return fiftyKB + rng.Intn(hundredKB-fiftyKB+1)
	}
}

func run(opts runOptions) error {
	seed := opts.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	a := segalloc.New(
		segalloc.WithCapacity(opts.capacity),
		segalloc.WithLargeThreshold(opts.largeThr),
		segalloc.WithWaitTimeout(time.Duration(opts.waitMs)*time.Millisecond),
	)
	defer a.Teardown()

	reg := prometheus.NewRegistry()
	m := newMetrics(reg)
	stopMetrics := serveMetrics(opts.metricsAddr, reg)
	defer stopMetrics()

	var wg sync.WaitGroup
	wg.Add(opts.workers)

	start := time.Now()
	for w := 0; w < opts.workers; w++ {
		go worker(&wg, a, m, rand.New(rand.NewSource(seed+int64(w))), opts.opsPerWork)
	}
	wg.Wait()
	elapsed := time.Since(start)

	report(m, elapsed, a.Stats())
	return nil
}

func worker(wg *sync.WaitGroup, a *segalloc.Allocator, m *metrics, rng *rand.Rand, ops int) {
	defer wg.Done()

	for i := 0; i < ops; i++ {
		size := chooseSize(rng)

		t0 := time.Now()
		p := a.Allocate(size)
		dt := time.Since(t0)

		atomic.AddInt64(&m.allocations, 1)
		atomic.AddInt64(&m.latencyNanos, dt.Nanoseconds())
		m.promAllocations.Inc()
		m.promLatency.Observe(dt.Seconds())

		if size >= oneKB {
			atomic.AddInt64(&m.largeAttempts, 1)
			if p != nil {
				atomic.AddInt64(&m.largeSuccesses, 1)
				atomic.AddInt64(&m.largeLatencyNS, dt.Nanoseconds())
				atomic.AddInt64(&m.largeLatencyObs, 1)
			}
		}

		if p == nil {
			continue
		}
		atomic.AddInt64(&m.successes, 1)
		m.promSuccesses.Inc()

		a.Release(p)
		atomic.AddInt64(&m.frees, 1)
	}
}

func report(m *metrics, elapsed time.Duration, stats segalloc.Stats) {
	allocations := atomic.LoadInt64(&m.allocations)
	successes := atomic.LoadInt64(&m.successes)
	frees := atomic.LoadInt64(&m.frees)
	totalOps := allocations + frees

	var avgLatencyUs float64
	if allocations > 0 {
		avgLatencyUs = float64(atomic.LoadInt64(&m.latencyNanos)) / float64(allocations) / 1e3
	}

	largeAttempts := atomic.LoadInt64(&m.largeAttempts)
	largeSuccesses := atomic.LoadInt64(&m.largeSuccesses)
	var largeSuccessRatio float64
	if largeAttempts > 0 {
		largeSuccessRatio = float64(largeSuccesses) / float64(largeAttempts) * 100
	}

	largeLatencyObs := atomic.LoadInt64(&m.largeLatencyObs)
	var avgLargeLatencyUs float64
	if largeLatencyObs > 0 {
		avgLargeLatencyUs = float64(atomic.LoadInt64(&m.largeLatencyNS)) / float64(largeLatencyObs) / 1e3
	}

	var successRatio float64
	if allocations > 0 {
		successRatio = float64(successes) / float64(allocations) * 100
	}

	fmt.Println("=== segbench results ===")
	fmt.Printf("Elapsed: %s\n", elapsed)
	fmt.Printf("Total ops (alloc+free): %d\n", totalOps)
	fmt.Printf("Throughput: %.1f ops/s\n", float64(totalOps)/elapsed.Seconds())
	fmt.Printf("Avg allocate latency: %.3f us\n", avgLatencyUs)
	fmt.Printf("Total allocates: %d\n", allocations)
	fmt.Printf("Total allocate successes: %d\n", successes)
	fmt.Printf("Success ratio: %.2f%%\n", successRatio)
	fmt.Printf("Large alloc attempts: %d\n", largeAttempts)
	fmt.Printf("Large success ratio: %.2f%%\n", largeSuccessRatio)
	fmt.Printf("Avg large latency: %.3f us\n", avgLargeLatencyUs)
	fmt.Printf("Allocator timeouts: %d\n", stats.Timeouts)
}
