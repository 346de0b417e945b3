package resilience

import (
	"context"

	"github.com/MrWong99/phonoscore/pkg/provider/stt"
)

// Transcriber is an [stt.Provider] that fails over across several
// transcription backends.
type Transcriber struct {
	group *Failover[stt.Provider]
}

var _ stt.Provider = (*Transcriber)(nil)

// NewTranscriber creates a Transcriber with primary as the preferred backend.
func NewTranscriber(primaryName string, primary stt.Provider, cfg BreakerConfig) *Transcriber {
	g := NewFailover[stt.Provider](cfg)
	g.Add(primaryName, primary)
	return &Transcriber{group: g}
}

// AddFallback registers a backend tried after those already added.
func (t *Transcriber) AddFallback(name string, p stt.Provider) {
	t.group.Add(name, p)
}

// Transcribe returns the transcript of the first backend that succeeds.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (stt.Transcript, error) {
	return Call(ctx, t.group, func(ctx context.Context, p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, audioPath)
	})
}

// States reports the breaker state of every backend.
func (t *Transcriber) States() map[string]State {
	return t.group.States()
}
