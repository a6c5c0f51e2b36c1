package main

import (
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type phaseStats struct {
	name     string
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func (s phaseStats) String() string {
	us := func(d time.Duration) time.Duration { return d.Round(time.Microsecond) }
	return fmt.Sprintf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s",
		s.name, s.ops, s.failures, s.total.Round(time.Millisecond), s.opsPerS,
		us(s.p50), us(s.p95), us(s.p99))
}

// runPhase calls op once for every i in [0, ops) with at most concurrency
// calls in flight. Failures are counted, never fatal.
func runPhase(name string, ops, concurrency int, op func(i int) error) phaseStats {
	samples := make([]time.Duration, ops)
	var failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(max(concurrency, 1))
	began := time.Now()
	for i := range ops {
		g.Go(func() error {
			t0 := time.Now()
			if op(i) != nil {
				failed.Add(1)
			}
			samples[i] = time.Since(t0)
			return nil
		})
	}
	_ = g.Wait()
	return summarize(name, time.Since(began), samples, failed.Load())
}

func summarize(name string, total time.Duration, samples []time.Duration, failures int64) phaseStats {
	s := phaseStats{name: name, total: total, failures: failures, ops: len(samples)}
	if s.ops == 0 {
		return s
	}
	slices.Sort(samples)
	s.p50, s.p95, s.p99 = percentile(samples, 50), percentile(samples, 95), percentile(samples, 99)
	if secs := total.Seconds(); secs > 0 {
		s.opsPerS = float64(s.ops) / secs
	}
	return s
}

// percentile uses nearest-rank on an ascending slice.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	p = min(max(p, 0), 100)
	return sorted[(len(sorted)-1)*p/100]
}
