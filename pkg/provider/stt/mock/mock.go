// Package mock provides a test double for the stt.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Result: stt.Transcript{Text: "hello world", Language: "en"}}
//	tr, _ := p.Transcribe(ctx, "clip.wav")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/phonoscore/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// AudioPath is the path passed to Transcribe.
	AudioPath string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by every Transcribe call.
	Result stt.Transcript

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns Result, Err.
func (p *Provider) Transcribe(ctx context.Context, audioPath string) (stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, AudioPath: audioPath})
	if p.Err != nil {
		return stt.Transcript{}, p.Err
	}
	return p.Result, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
