package main

import (
	"errors"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	cases := map[int]time.Duration{0: 1, 50: 5, 99: 9, 100: 10}
	for p, want := range cases {
		if got := percentile(samples, p); got != want {
			t.Fatalf("p%d = %d, want %d", p, got, want)
		}
	}
	if percentile(nil, 50) != 0 {
		t.Fatal("empty samples should give 0")
	}
}

func TestRunPhaseCountsEveryOp(t *testing.T) {
	seen := make([]int32, 100)
	s := runPhase("test", len(seen), 7, func(i int) error {
		seen[i]++
		if i%10 == 0 {
			return errors.New("fail")
		}
		return nil
	})
	if s.ops != 100 || s.failures != 10 {
		t.Fatalf("ops=%d failures=%d", s.ops, s.failures)
	}
	for i, n := range seen {
		if n != 1 {
			t.Fatalf("op %d ran %d times", i, n)
		}
	}
}

func TestNewLoggerFallsBackOnBadLevel(t *testing.T) {
	logger, err := newLogger(logConfig{Level: "loud"})
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	if !logger.Core().Enabled(0) {
		t.Fatal("info should be enabled")
	}
}
