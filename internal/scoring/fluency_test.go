package scoring

import (
	"context"
	"errors"
	"math"
	"testing"
)

type fakeTiming struct {
	timing Timing
	err    error
	calls  int
}

func (f *fakeTiming) MeasureTiming(_ context.Context, _ string) (Timing, error) {
	f.calls++
	return f.timing, f.err
}

func TestEstimator_LowCoverageSkipsTiming(t *testing.T) {
	t.Parallel()

	ts := &fakeTiming{err: errors.New("must not be called")}
	e := NewEstimator(ts)

	in := FluencyInput{TotalWords: 1, Ratings: []Rating{3}, BaseScriptLen: 10}
	got, err := e.Fluency(context.Background(), "clip.wav", in)
	if err != nil {
		t.Fatalf("Fluency: unexpected error: %v", err)
	}
	if got != 10 {
		t.Errorf("Fluency = %v, want 10", got)
	}
	if ts.calls != 0 {
		t.Errorf("MeasureTiming called %d times, want 0", ts.calls)
	}
}

func TestEstimator_LowAverageSkipsTiming(t *testing.T) {
	t.Parallel()

	ts := &fakeTiming{}
	e := NewEstimator(ts)

	in := FluencyInput{TotalWords: 4, Ratings: []Rating{1, 1, 2, 1}, BaseScriptLen: 4}
	got, err := e.Fluency(context.Background(), "clip.wav", in)
	if err != nil {
		t.Fatalf("Fluency: unexpected error: %v", err)
	}
	if got != 10 {
		t.Errorf("Fluency = %v, want 10", got)
	}
	if ts.calls != 0 {
		t.Errorf("MeasureTiming called %d times, want 0", ts.calls)
	}
}

func TestEstimator_TimingError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("decode failed")
	e := NewEstimator(&fakeTiming{err: wantErr})

	in := FluencyInput{TotalWords: 4, Ratings: []Rating{3, 3, 2, 3}, BaseScriptLen: 4}
	if _, err := e.Fluency(context.Background(), "clip.wav", in); !errors.Is(err, wantErr) {
		t.Errorf("Fluency error = %v, want %v", err, wantErr)
	}
}

func TestEstimator_MeasuresTiming(t *testing.T) {
	t.Parallel()

	ts := &fakeTiming{timing: Timing{Total: 4, NonSilent: 3.6}}
	e := NewEstimator(ts)

	in := FluencyInput{TotalWords: 8, Ratings: []Rating{3, 3, 3, 3, 3, 3, 3, 3}, BaseScriptLen: 8}
	got, err := e.Fluency(context.Background(), "clip.wav", in)
	if err != nil {
		t.Fatalf("Fluency: unexpected error: %v", err)
	}
	if ts.calls != 1 {
		t.Errorf("MeasureTiming called %d times, want 1", ts.calls)
	}
	if math.Abs(got-90) > 1e-9 {
		t.Errorf("Fluency = %v, want 90", got)
	}
}

func TestFluencyFromTiming(t *testing.T) {
	t.Parallel()

	good8 := []Rating{3, 3, 3, 3, 3, 3, 3, 3}

	tests := []struct {
		name   string
		in     FluencyInput
		timing Timing
		want   float64
	}{
		{
			name:   "ideal pace and ratio",
			in:     FluencyInput{TotalWords: 8, Ratings: good8, BaseScriptLen: 8},
			timing: Timing{Total: 4, NonSilent: 3.6},
			want:   90,
		},
		{
			// rate 1 word/s scores 0.5, everything else perfect.
			name:   "slow speech",
			in:     FluencyInput{TotalWords: 8, Ratings: good8, BaseScriptLen: 8},
			timing: Timing{Total: 8.0 / 0.9, NonSilent: 8},
			want:   10 + (0.5*0.2+0.2+0.5+0.1)*80,
		},
		{
			// short utterances ignore the measured non-silent time, so the
			// speech rate explodes and scores 0.
			name:   "short utterance",
			in:     FluencyInput{TotalWords: 4, Ratings: []Rating{3, 3, 2, 3}, BaseScriptLen: 4},
			timing: Timing{Total: 2, NonSilent: 1.8},
			want:   10 + (0*0.2+1*0.2+0.875*0.5+0.8*0.1)*80,
		},
		{
			name:   "half speaking ratio",
			in:     FluencyInput{TotalWords: 8, Ratings: good8, BaseScriptLen: 8},
			timing: Timing{Total: 3.6 / 0.45, NonSilent: 3.6},
			want:   10 + (0.2+0.5*0.2+0.5+0.1)*80,
		},
		{
			name:   "zero total duration",
			in:     FluencyInput{TotalWords: 8, Ratings: good8, BaseScriptLen: 8},
			timing: Timing{Total: 0, NonSilent: 0},
			want:   10 + (0+0+0.5+0.1)*80,
		},
		{
			name:   "zero base script length",
			in:     FluencyInput{TotalWords: 8, Ratings: good8, BaseScriptLen: 0},
			timing: Timing{Total: 4, NonSilent: 3.6},
			want:   10,
		},
		{
			name:   "coverage floor ignores timing",
			in:     FluencyInput{TotalWords: 1, Ratings: []Rating{3}, BaseScriptLen: 20},
			timing: Timing{Total: 4, NonSilent: 3.6},
			want:   10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := FluencyFromTiming(tt.in, tt.timing)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("FluencyFromTiming = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFluencyFromTiming_Bounded(t *testing.T) {
	t.Parallel()

	ratingSets := [][]Rating{
		{3, 3, 3},
		{2, 2, 1, 3},
		{3, 1, 3, 1, 3, 1, 2},
		{2, 2, 2, 2, 2, 2, 2, 2, 2, 2},
	}
	timings := []Timing{
		{Total: 0, NonSilent: 0},
		{Total: 1, NonSilent: 0.01},
		{Total: 5, NonSilent: 5},
		{Total: 30, NonSilent: 2},
		{Total: 3, NonSilent: 2.7},
	}

	for _, ratings := range ratingSets {
		for words := 1; words <= 12; words++ {
			for _, tm := range timings {
				in := FluencyInput{TotalWords: words, Ratings: ratings, BaseScriptLen: len(ratings)}
				got := FluencyFromTiming(in, tm)
				if got < 10 || got > 90+1e-9 {
					t.Errorf("FluencyFromTiming(%+v, %+v) = %v, outside [10, 90]", in, tm, got)
				}
			}
		}
	}
}

func TestFluencyInput_Assessable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   FluencyInput
		want bool
	}{
		{"example passes", FluencyInput{TotalWords: 4, Ratings: []Rating{3, 3, 2, 3}, BaseScriptLen: 4}, true},
		{"coverage exactly at threshold", FluencyInput{TotalWords: 3, Ratings: []Rating{3}, BaseScriptLen: 20}, true},
		{"coverage below threshold", FluencyInput{TotalWords: 2, Ratings: []Rating{3}, BaseScriptLen: 20}, false},
		{"average exactly 1.5", FluencyInput{TotalWords: 2, Ratings: []Rating{1, 2}, BaseScriptLen: 2}, true},
		{"no ratings", FluencyInput{TotalWords: 2, Ratings: nil, BaseScriptLen: 2}, false},
	}
	for _, tt := range tests {
		if got := tt.in.Assessable(); got != tt.want {
			t.Errorf("%s: Assessable() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSpeechRateScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rate, want float64
	}{
		{2, 1},
		{140.0 / 60, 1},
		{2.1, 1},
		{1, 0.5},
		{0, 0},
		{3.5, 0.5},
		{10, 0},
	}
	for _, tt := range tests {
		if got := speechRateScore(tt.rate); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("speechRateScore(%v) = %v, want %v", tt.rate, got, tt.want)
		}
	}
}

func TestFluency_Idempotent(t *testing.T) {
	t.Parallel()

	in := FluencyInput{TotalWords: 6, Ratings: []Rating{3, 2, 3, 1, 3, 3}, BaseScriptLen: 7}
	tm := Timing{Total: 4.2, NonSilent: 2.9}
	first := FluencyFromTiming(in, tm)
	for range 5 {
		if got := FluencyFromTiming(in, tm); got != first {
			t.Fatalf("FluencyFromTiming not idempotent: %v then %v", first, got)
		}
	}
}
