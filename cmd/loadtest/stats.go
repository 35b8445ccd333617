package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"text/tabwriter"
	"time"
)

type stats struct {
	mu        sync.Mutex
	latencies []time.Duration
	failures  int
	statuses  map[int]int
	outcomes  map[string]int
	diagnosed map[string]int
}

func newStats() *stats {
	return &stats{
		latencies: make([]time.Duration, 0, 1<<14),
		statuses:  make(map[int]int),
		outcomes:  make(map[string]int),
		diagnosed: make(map[string]int),
	}
}

func (s *stats) record(latency time.Duration, status int, r *reply, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failures++
		return
	}
	s.latencies = append(s.latencies, latency)
	s.statuses[status]++
	if r == nil {
		return
	}
	switch {
	case r.Status == "confident":
		s.outcomes["confident"]++
		s.diagnosed[r.DiseaseName]++
	case r.Reason != "":
		s.outcomes["inconclusive/"+r.Reason]++
	default:
		s.outcomes[r.Status]++
	}
}

func (s *stats) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.latencies) + s.failures
}

func (s *stats) report(w io.Writer, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.latencies) + s.failures
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "=== Results ===")
	fmt.Fprintf(tw, "Requests\t%d\n", total)
	fmt.Fprintf(tw, "Transport errors\t%d\n", s.failures)
	if total > 0 {
		fmt.Fprintf(tw, "Requests/sec\t%.1f\n", float64(total)/elapsed.Seconds())
	}

	if len(s.latencies) > 0 {
		sorted := append([]time.Duration(nil), s.latencies...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		fmt.Fprintln(tw, "\n=== Latency ===")
		for _, p := range []float64{50, 95, 99} {
			fmt.Fprintf(tw, "P%.0f\t%s\n", p, percentile(sorted, p))
		}
		fmt.Fprintf(tw, "Max\t%s\n", sorted[len(sorted)-1])
	}

	printCounts(tw, "Status codes", s.statuses)
	printCounts(tw, "Outcomes", s.outcomes)
	printCounts(tw, "Diagnosed", s.diagnosed)
	_ = tw.Flush()
}

// printCounts lists counts in descending order, ties by key.
func printCounts[K int | string](w io.Writer, title string, counts map[K]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]K, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	fmt.Fprintf(w, "\n=== %s ===\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %v\t%d\n", k, counts[k])
	}
}

// percentile uses the nearest-rank method on sorted latencies.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
