// Package audio loads recorded utterances into mono float32 PCM.
//
// A [Clip] is the unit every downstream stage works on: silence detection
// measures it, local speech recognition resamples it, and streaming speech
// recognition re-encodes it as 16-bit PCM.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Clip is a mono recording with samples normalised to [-1, 1].
type Clip struct {
	Samples    []float32
	SampleRate int
}

// Seconds returns the clip length in seconds. A clip without a sample rate has
// length 0.
func (c *Clip) Seconds() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Duration returns the clip length as a [time.Duration].
func (c *Clip) Duration() time.Duration {
	return time.Duration(c.Seconds() * float64(time.Second))
}

// Resample returns a copy of c at dstRate using linear interpolation. If the
// rates already match, c itself is returned.
func (c *Clip) Resample(dstRate int) *Clip {
	if dstRate <= 0 || c.SampleRate <= 0 || c.SampleRate == dstRate || len(c.Samples) < 2 {
		return c
	}
	src := c.Samples
	dstLen := int(int64(len(src)) * int64(dstRate) / int64(c.SampleRate))
	out := make([]float32, dstLen)
	ratio := float64(c.SampleRate) / float64(dstRate)

	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		s0 := src[idx]
		s1 := s0
		if idx+1 < len(src) {
			s1 = src[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return &Clip{Samples: out, SampleRate: dstRate}
}

// PCM16 encodes the clip as little-endian signed 16-bit PCM, clamping
// out-of-range samples.
func (c *Clip) PCM16() []byte {
	out := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		v := math.Round(float64(s) * math.MaxInt16)
		v = max(math.MinInt16, min(v, math.MaxInt16))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}
