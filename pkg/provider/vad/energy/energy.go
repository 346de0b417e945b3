// Package energy implements a frame-energy silence detector.
//
// Samples are cut into overlapping frames (2048 samples, hop 512, zero padded
// by half a frame on both ends). A frame is non-silent when its mean-square
// energy is within topDB decibels of the loudest frame. Runs of non-silent
// frames become [vad.Interval] values in sample units, clamped to the input.
package energy

import (
	"fmt"
	"math"

	"github.com/MrWong99/phonoscore/pkg/provider/vad"
)

const (
	defaultFrameLength = 2048
	defaultHopLength   = 512

	// powerFloor keeps log10 finite on digital silence.
	powerFloor = 1e-10
)

// Option is a functional option for configuring a Detector.
type Option func(*Detector)

// WithFrameLength sets the analysis frame length in samples.
func WithFrameLength(n int) Option {
	return func(d *Detector) {
		d.frameLength = n
	}
}

// WithHopLength sets the distance between frame starts in samples.
func WithHopLength(n int) Option {
	return func(d *Detector) {
		d.hopLength = n
	}
}

// Detector is a stateless energy-threshold silence detector.
type Detector struct {
	frameLength int
	hopLength   int
}

var _ vad.Detector = (*Detector)(nil)

// New returns a Detector with the given options applied.
func New(opts ...Option) (*Detector, error) {
	d := &Detector{
		frameLength: defaultFrameLength,
		hopLength:   defaultHopLength,
	}
	for _, o := range opts {
		o(d)
	}
	if d.frameLength <= 0 || d.hopLength <= 0 {
		return nil, fmt.Errorf("energy: frame length %d and hop length %d must be positive", d.frameLength, d.hopLength)
	}
	return d, nil
}

// NonSilentIntervals implements [vad.Detector].
//
// A recording of pure digital silence has every frame at the reference level
// and is therefore reported as one non-silent interval spanning the input.
func (d *Detector) NonSilentIntervals(samples []float32, sampleRate int, topDB float64) ([]vad.Interval, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate %d: %w", sampleRate, vad.ErrInvalidInput)
	}
	if topDB <= 0 || math.IsNaN(topDB) {
		return nil, fmt.Errorf("energy: top_db %v: %w", topDB, vad.ErrInvalidInput)
	}
	if len(samples) == 0 {
		return nil, nil
	}

	power := d.framePower(samples)
	var peak float64
	for _, p := range power {
		peak = max(peak, p)
	}
	refDB := 10 * math.Log10(max(powerFloor, peak))

	loud := make([]bool, len(power))
	for i, p := range power {
		loud[i] = 10*math.Log10(max(powerFloor, p))-refDB > -topDB
	}

	edges := make([]int, 0, 8)
	if loud[0] {
		edges = append(edges, 0)
	}
	for i := 1; i < len(loud); i++ {
		if loud[i] != loud[i-1] {
			edges = append(edges, i)
		}
	}
	if loud[len(loud)-1] {
		edges = append(edges, len(loud))
	}

	intervals := make([]vad.Interval, 0, len(edges)/2)
	for i := 0; i+1 < len(edges); i += 2 {
		intervals = append(intervals, vad.Interval{
			Start: min(edges[i]*d.hopLength, len(samples)),
			End:   min(edges[i+1]*d.hopLength, len(samples)),
		})
	}
	return intervals, nil
}

// framePower returns the mean-square energy of every centred frame.
func (d *Detector) framePower(samples []float32) []float64 {
	pad := d.frameLength / 2
	padded := len(samples) + 2*pad
	frames := 1 + (padded-d.frameLength)/d.hopLength
	if padded < d.frameLength {
		frames = 1
	}

	// cum[i] holds the sum of squares of samples[:i].
	cum := make([]float64, len(samples)+1)
	for i, s := range samples {
		v := float64(s)
		cum[i+1] = cum[i] + v*v
	}

	power := make([]float64, frames)
	for k := range power {
		lo := k*d.hopLength - pad
		hi := lo + d.frameLength
		lo = max(0, min(lo, len(samples)))
		hi = max(0, min(hi, len(samples)))
		power[k] = (cum[hi] - cum[lo]) / float64(d.frameLength)
	}
	return power
}
