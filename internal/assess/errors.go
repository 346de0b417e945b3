package assess

import (
	"context"
	"errors"
)

var (
	// ErrInvalidInput is returned for a missing audio file or a reference
	// text without words.
	ErrInvalidInput = errors.New("assess: invalid input")

	// ErrTranscription is returned when the transcriber fails or produces no
	// words.
	ErrTranscription = errors.New("assess: transcription failed")

	// ErrPhonemization is returned when the phonemizer fails or does not
	// return one phoneme string per word.
	ErrPhonemization = errors.New("assess: phonemization failed")

	// ErrDegenerateAudio is returned when the recording cannot be decoded or
	// holds no samples, so speech timing cannot be measured.
	ErrDegenerateAudio = errors.New("assess: degenerate audio")
)

// statusOf maps an analysis error to the status label used in metrics.
func statusOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrTranscription):
		return "transcription_error"
	case errors.Is(err, ErrPhonemization):
		return "phonemization_error"
	case errors.Is(err, ErrDegenerateAudio):
		return "degenerate_audio"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
