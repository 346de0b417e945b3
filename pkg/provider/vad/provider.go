// Package vad defines the Detector interface for silence detection backends.
//
// A Detector splits a mono recording into the intervals that carry sound,
// relative to the loudest part of the same recording. The fluency scorer sums
// these intervals to measure how long the speaker was actually talking.
//
// Implementations must be safe for concurrent use: the same Detector is shared
// by every in-flight analysis.
package vad

import "errors"

// ErrInvalidInput is returned when a Detector is called with a sample rate or
// threshold it cannot work with.
var ErrInvalidInput = errors.New("vad: invalid input")

// Interval is a half-open range [Start, End) of sample indices.
type Interval struct {
	Start int
	End   int
}

// Len returns the number of samples covered by iv.
func (iv Interval) Len() int {
	return iv.End - iv.Start
}

// Seconds returns the total duration of ivs at sampleRate.
func Seconds(ivs []Interval, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	var n int
	for _, iv := range ivs {
		n += iv.Len()
	}
	return float64(n) / float64(sampleRate)
}

// Detector finds the non-silent parts of a recording.
type Detector interface {
	// NonSilentIntervals returns the ordered, non-overlapping intervals of
	// samples whose level lies within topDB decibels of the loudest frame.
	// An empty input yields no intervals and no error.
	NonSilentIntervals(samples []float32, sampleRate int, topDB float64) ([]Interval, error)
}
