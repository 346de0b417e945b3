// Package mock provides a test double for the g2p.Provider interface.
//
// By default the mock returns each lower-cased word as its own "phonemes",
// which makes identical words align exactly. Set Phonemes to map specific
// words to fixed strings.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/phonoscore/pkg/provider/g2p"
)

// PhonemizeCall records a single invocation of Provider.Phonemize.
type PhonemizeCall struct {
	// Words is a copy of the words passed to Phonemize.
	Words []string
	// Language is the language passed to Phonemize.
	Language string
}

// Provider is a mock implementation of g2p.Provider.
type Provider struct {
	mu sync.Mutex

	// Phonemes overrides the output for specific lower-cased words.
	Phonemes map[string]string

	// Err, if non-nil, is returned as the error from Phonemize.
	Err error

	// Short, if true, drops the last element of every result.
	Short bool

	// PhonemizeCalls records every call to Phonemize in order.
	PhonemizeCalls []PhonemizeCall
}

// Phonemize records the call and returns the mapped phonemes.
func (p *Provider) Phonemize(_ context.Context, words []string, language string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PhonemizeCalls = append(p.PhonemizeCalls, PhonemizeCall{
		Words:    append([]string(nil), words...),
		Language: language,
	})
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(w)
		if ph, ok := p.Phonemes[w]; ok {
			out = append(out, ph)
			continue
		}
		out = append(out, w)
	}
	if p.Short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PhonemizeCalls = nil
}

// Ensure Provider implements g2p.Provider at compile time.
var _ g2p.Provider = (*Provider)(nil)
