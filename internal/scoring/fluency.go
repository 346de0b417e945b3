package scoring

import (
	"context"
	"log/slog"
)

// SilenceTopDB is the threshold, in decibels below the loudest frame, under
// which audio is treated as silence when measuring [Timing].
const SilenceTopDB = 22.0

const (
	scoreFloor = 10.0
	scoreSpan  = 80.0

	minWordCoverage  = 0.15
	minAverageRating = 1.5

	rateEpsilon  = 1e-7
	idealMinRate = 120.0 / 60
	idealMaxRate = 140.0 / 60

	// shortUtteranceWords is the word count at or below which the measured
	// non-silent duration is ignored in the speech rate.
	shortUtteranceWords = 4

	goldSpeakingRatio = 0.9

	rateWeight          = 0.20
	ratioWeight         = 0.20
	pronunciationWeight = 0.50
	consistencyWeight   = 0.10
)

// Timing holds the speech-timing signals of one recording, in seconds.
// NonSilent never exceeds Total.
type Timing struct {
	Total     float64
	NonSilent float64
}

// TimingSource measures the [Timing] of an audio file.
type TimingSource interface {
	MeasureTiming(ctx context.Context, audioPath string) (Timing, error)
}

// FluencyInput carries the word-level inputs of a fluency estimate.
type FluencyInput struct {
	// TotalWords is the number of words in the transcript.
	TotalWords int
	// Ratings are the per-word pronunciation ratings.
	Ratings []Rating
	// BaseScriptLen is the number of words in the reference script.
	BaseScriptLen int
}

// Assessable reports whether in carries enough signal to be scored above the
// floor. When it returns false, fluency is 10 and timing need not be measured.
func (in FluencyInput) Assessable() bool {
	if in.BaseScriptLen <= 0 {
		return false
	}
	if float64(in.TotalWords)/float64(in.BaseScriptLen) < minWordCoverage {
		return false
	}
	return ExpectedValue(in.Ratings) >= minAverageRating
}

// Estimator produces fluency scores, measuring timing only when needed.
type Estimator struct {
	timing TimingSource
}

// NewEstimator returns an Estimator that measures audio with ts.
func NewEstimator(ts TimingSource) *Estimator {
	return &Estimator{timing: ts}
}

// Fluency scores the recording at audioPath. The result lies in [10, 90].
// Timing errors are returned unchanged.
func (e *Estimator) Fluency(ctx context.Context, audioPath string, in FluencyInput) (float64, error) {
	if !in.Assessable() {
		slog.Debug("fluency below assessment threshold",
			"total_words", in.TotalWords,
			"base_script_len", in.BaseScriptLen,
			"expected_value", ExpectedValue(in.Ratings),
		)
		return scoreFloor, nil
	}
	t, err := e.timing.MeasureTiming(ctx, audioPath)
	if err != nil {
		return 0, err
	}
	return FluencyFromTiming(in, t), nil
}

// FluencyFromTiming computes fluency from already-measured timing. It applies
// the same floor rules as [Estimator.Fluency].
func FluencyFromTiming(in FluencyInput, t Timing) float64 {
	if !in.Assessable() {
		return scoreFloor
	}

	nonSilent := t.NonSilent
	if in.TotalWords <= shortUtteranceWords {
		nonSilent = 0
	}
	words := float64(in.TotalWords)
	rate := (words / (nonSilent + rateEpsilon)) * (words / float64(in.BaseScriptLen))

	rateScore := speechRateScore(rate)
	ratioScore := speakingRatioScore(t)
	pronScore := (ExpectedValue(in.Ratings) - 1) / 2
	variance := SampleVariance(in.Ratings)

	combined := rateScore*rateWeight +
		ratioScore*ratioWeight +
		pronScore*pronunciationWeight +
		(1/(1+variance))*consistencyWeight

	slog.Debug("fluency components",
		"speech_rate", rate,
		"speech_rate_score", rateScore,
		"speaking_ratio_score", ratioScore,
		"pronunciation_score", pronScore,
		"variance", variance,
	)
	return scoreFloor + combined*scoreSpan
}

func speechRateScore(rate float64) float64 {
	var s float64
	switch {
	case rate >= idealMinRate && rate <= idealMaxRate:
		return 1
	case rate < idealMinRate:
		s = rate / idealMinRate
	default:
		s = 2 - rate/idealMaxRate
	}
	return clamp01(s)
}

func speakingRatioScore(t Timing) float64 {
	if t.Total <= 0 {
		return 0
	}
	return min((t.NonSilent/t.Total)/goldSpeakingRatio, 1)
}

func clamp01(v float64) float64 {
	return max(0, min(v, 1))
}
