// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider turns one recorded utterance into text. Providers range from
// an in-process whisper.cpp model to hosted APIs; all of them receive the path
// of a WAV file and return a single [Transcript] for the whole recording.
//
// Implementations must be safe for concurrent use: a single Provider instance
// serves every in-flight analysis.
package stt

import (
	"context"
	"time"
)

// Transcript is the recognition result for one recording.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Language is the language the provider recognised or was configured for.
	// Empty when the provider does not report it.
	Language string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report confidence.
	Confidence float64

	// Words contains per-word timing when the provider reports it.
	Words []WordDetail
}

// WordDetail holds per-word recognition detail.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe recognises the speech in the WAV file at audioPath. The
	// returned Transcript may have empty Text when no speech was recognised;
	// callers decide whether that is an error.
	Transcribe(ctx context.Context, audioPath string) (Transcript, error)
}
