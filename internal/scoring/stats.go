// Package scoring turns per-word pronunciation ratings and speech timing into
// bounded fluency and accuracy scores.
//
// Every function in this package is pure: the same inputs always produce the
// same outputs and nothing is cached between calls. Audio I/O is reached only
// through the [TimingSource] interface.
package scoring

import (
	"maps"
	"slices"
)

// ExpectedValue returns the frequency-weighted mean of the distinct ratings in
// scores. An empty slice yields 0.
func ExpectedValue(scores []Rating) float64 {
	if len(scores) == 0 {
		return 0
	}
	counts := make(map[Rating]int, 3)
	for _, s := range scores {
		counts[s]++
	}
	n := float64(len(scores))
	var ev float64
	for _, v := range slices.Sorted(maps.Keys(counts)) {
		ev += float64(v) * (float64(counts[v]) / n)
	}
	return ev
}

// SampleVariance returns the unbiased (n-1) variance of scores. Fewer than two
// scores yield 0.
func SampleVariance(scores []Rating) float64 {
	if len(scores) < 2 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += float64(s)
	}
	mean := sum / float64(len(scores))
	var sq float64
	for _, s := range scores {
		d := float64(s) - mean
		sq += d * d
	}
	return sq / float64(len(scores)-1)
}
