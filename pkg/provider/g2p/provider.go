// Package g2p defines the Provider interface for grapheme-to-phoneme backends.
//
// A G2P provider converts written words to phoneme strings. Scoring compares
// the phonemes of what was said against the phonemes of what should have been
// said, so the same Provider must be used for both sides of a comparison.
package g2p

import "context"

// DefaultLanguage is the language used when none is configured.
const DefaultLanguage = "en-us"

// Provider converts words to phoneme strings.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Phonemize returns one phoneme string per input word, preserving order
	// and count. Input case is ignored. An empty word yields an empty string.
	Phonemize(ctx context.Context, words []string, language string) ([]string, error)
}
