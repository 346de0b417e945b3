// Package mock provides a test double for the vad.Detector interface.
//
// Example:
//
//	d := &mock.Detector{Intervals: []vad.Interval{{Start: 0, End: 16000}}}
//	ivs, _ := d.NonSilentIntervals(samples, 16000, 22)
package mock

import (
	"sync"

	"github.com/MrWong99/phonoscore/pkg/provider/vad"
)

// NonSilentIntervalsCall records a single invocation of Detector.NonSilentIntervals.
type NonSilentIntervalsCall struct {
	// SampleCount is the number of samples passed.
	SampleCount int
	// SampleRate is the sample rate passed.
	SampleRate int
	// TopDB is the threshold passed.
	TopDB float64
}

// Detector is a mock implementation of vad.Detector.
type Detector struct {
	mu sync.Mutex

	// Intervals is returned by every NonSilentIntervals call.
	Intervals []vad.Interval

	// Err, if non-nil, is returned as the error from NonSilentIntervals.
	Err error

	// Calls records every call to NonSilentIntervals in order.
	Calls []NonSilentIntervalsCall
}

// NonSilentIntervals records the call and returns Intervals, Err.
func (d *Detector) NonSilentIntervals(samples []float32, sampleRate int, topDB float64) ([]vad.Interval, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, NonSilentIntervalsCall{
		SampleCount: len(samples),
		SampleRate:  sampleRate,
		TopDB:       topDB,
	})
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Intervals, nil
}

// Reset clears all recorded calls. Thread-safe.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = nil
}

// Ensure Detector implements vad.Detector at compile time.
var _ vad.Detector = (*Detector)(nil)
