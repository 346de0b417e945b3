// Package assess runs one pronunciation assessment end to end: it transcribes
// a recording, phonemizes the transcript and the reference script, rates each
// reference word and combines the ratings with speech timing into fluency and
// accuracy scores. All scoring arithmetic lives in package scoring.
package assess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/phonoscore/internal/observe"
	"github.com/MrWong99/phonoscore/internal/scoring"
	"github.com/MrWong99/phonoscore/pkg/provider/g2p"
	"github.com/MrWong99/phonoscore/pkg/provider/stt"
)

// WordScore is the rating of one reference word.
type WordScore struct {
	Word   string         `json:"word"`
	Rating scoring.Rating `json:"rating"`
}

// Result is the outcome of one analysis.
type Result struct {
	Fluency  float64 `json:"fluency"`
	Accuracy float64 `json:"accuracy"`
	// Words holds one entry per reference word, in script order.
	Words []WordScore `json:"words"`
	// Transcript is what the transcriber heard.
	Transcript string `json:"transcript"`
}

// Analyzer orchestrates the external collaborators and the scoring core. It
// is safe for concurrent use.
type Analyzer struct {
	transcriber stt.Provider
	phonemizer  g2p.Provider
	fluency     *scoring.Estimator

	language   string
	scratchDir string
	sem        *semaphore.Weighted
	metrics    *observe.Metrics
	sttLabel   string
	g2pLabel   string
}

// Option configures an [Analyzer].
type Option func(*Analyzer)

// WithLanguage sets the phonemizer language. Default [g2p.DefaultLanguage].
func WithLanguage(lang string) Option {
	return func(a *Analyzer) {
		if lang != "" {
			a.language = lang
		}
	}
}

// WithMaxConcurrent bounds the number of analyses running at once. Callers
// beyond the bound wait until a slot frees or their context ends. Zero or
// negative means unbounded.
func WithMaxConcurrent(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithScratchDir sets where [Analyzer.AnalyzeAudio] stores uploads.
// Default os.TempDir().
func WithScratchDir(dir string) Option {
	return func(a *Analyzer) {
		if dir != "" {
			a.scratchDir = dir
		}
	}
}

// WithMetrics sets the metrics sink. Default [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithProviderLabels names the transcriber and phonemizer in metrics.
func WithProviderLabels(sttName, g2pName string) Option {
	return func(a *Analyzer) {
		if sttName != "" {
			a.sttLabel = sttName
		}
		if g2pName != "" {
			a.g2pLabel = g2pName
		}
	}
}

// New creates an Analyzer. timing measures the recordings, usually a [Meter].
func New(transcriber stt.Provider, phonemizer g2p.Provider, timing scoring.TimingSource, opts ...Option) *Analyzer {
	a := &Analyzer{
		transcriber: transcriber,
		phonemizer:  phonemizer,
		language:    g2p.DefaultLanguage,
		scratchDir:  os.TempDir(),
		sttLabel:    "stt",
		g2pLabel:    "g2p",
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.fluency = scoring.NewEstimator(&timedSource{src: timing, metrics: a.metrics})
	return a
}

// Analyze scores the WAV recording at audioPath against referenceText.
func (a *Analyzer) Analyze(ctx context.Context, audioPath, referenceText string) (*Result, error) {
	reference := strings.Fields(referenceText)
	if len(reference) == 0 {
		return nil, fmt.Errorf("%w: reference text has no words", ErrInvalidInput)
	}
	if audioPath == "" {
		return nil, fmt.Errorf("%w: empty audio path", ErrInvalidInput)
	}
	if fi, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	} else if fi.IsDir() {
		return nil, fmt.Errorf("%w: %q is a directory", ErrInvalidInput, audioPath)
	}
	return a.run(ctx, audioPath, reference)
}

// AnalyzeAudio stores the recording read from r in a uniquely named scratch
// file, analyzes it and removes the file before returning.
func (a *Analyzer) AnalyzeAudio(ctx context.Context, r io.Reader, referenceText string) (*Result, error) {
	reference := strings.Fields(referenceText)
	if len(reference) == 0 {
		return nil, fmt.Errorf("%w: reference text has no words", ErrInvalidInput)
	}

	path := filepath.Join(a.scratchDir, "phonoscore-"+uuid.NewString()+".wav")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("assess: create scratch file: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			observe.Logger(ctx).Warn("failed to remove scratch file", "path", path, "err", err)
		}
	}()

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("assess: write scratch file: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: empty audio upload", ErrInvalidInput)
	}
	return a.run(ctx, path, reference)
}

func (a *Analyzer) run(ctx context.Context, audioPath string, reference []string) (res *Result, err error) {
	if a.sem != nil {
		if err := a.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer a.sem.Release(1)
	}

	ctx, span := observe.StartSpan(ctx, "assess.Analyze")
	start := time.Now()
	a.metrics.ActiveAnalyses.Add(ctx, 1)
	defer func() {
		a.metrics.ActiveAnalyses.Add(ctx, -1)
		a.metrics.AnalysisDuration.Record(ctx, time.Since(start).Seconds())
		a.metrics.RecordAnalysis(ctx, statusOf(err))
		observe.EndSpan(span, err)
	}()

	transcript, err := a.transcribe(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	heard := strings.Fields(transcript.Text)
	if len(heard) == 0 {
		return nil, fmt.Errorf("%w: empty transcript", ErrTranscription)
	}

	heardPhonemes, refPhonemes, err := a.phonemizePair(ctx, lowerAll(heard), lowerAll(reference))
	if err != nil {
		return nil, err
	}

	// One rating per reference word; the transcript is the search space.
	ratings := scoring.RatePronunciation(heardPhonemes, refPhonemes)

	fluency, err := a.fluency.Fluency(ctx, audioPath, scoring.FluencyInput{
		TotalWords:    len(heard),
		Ratings:       ratings,
		BaseScriptLen: len(reference),
	})
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, ErrDegenerateAudio) {
			err = fmt.Errorf("%w: %w", ErrDegenerateAudio, err)
		}
		return nil, err
	}
	accuracy := scoring.Accuracy(ratings, fluency, len(reference))

	words := make([]WordScore, len(reference))
	for i, w := range reference {
		words[i] = WordScore{Word: w, Rating: ratings[i]}
		a.metrics.RecordWordRating(ctx, ratings[i].String())
	}
	a.metrics.RecordScore(ctx, "fluency", fluency)
	a.metrics.RecordScore(ctx, "accuracy", accuracy)

	observe.Logger(ctx).Info("analysis complete",
		"words", len(reference),
		"heard_words", len(heard),
		"fluency", fluency,
		"accuracy", accuracy,
		"duration", time.Since(start),
	)
	return &Result{
		Fluency:    fluency,
		Accuracy:   accuracy,
		Words:      words,
		Transcript: transcript.Text,
	}, nil
}

func (a *Analyzer) transcribe(ctx context.Context, audioPath string) (stt.Transcript, error) {
	ctx, span := observe.StartSpan(ctx, "assess.transcribe")
	start := time.Now()
	tr, err := a.transcriber.Transcribe(ctx, audioPath)
	a.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	a.recordProvider(ctx, a.sttLabel, "stt", err)
	observe.EndSpan(span, err)
	if err != nil {
		if ctx.Err() != nil {
			return stt.Transcript{}, err
		}
		return stt.Transcript{}, fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	return tr, nil
}

// phonemizePair converts both word lists concurrently.
func (a *Analyzer) phonemizePair(ctx context.Context, heard, reference []string) (heardPh, refPh []string, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		heardPh, err = a.phonemize(gctx, heard)
		return err
	})
	g.Go(func() error {
		var err error
		refPh, err = a.phonemize(gctx, reference)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return heardPh, refPh, nil
}

func (a *Analyzer) phonemize(ctx context.Context, words []string) ([]string, error) {
	ctx, span := observe.StartSpan(ctx, "assess.phonemize")
	start := time.Now()
	out, err := a.phonemizer.Phonemize(ctx, words, a.language)
	if err == nil {
		err = checkPhonemes(words, out)
	}
	a.metrics.G2PDuration.Record(ctx, time.Since(start).Seconds())
	a.recordProvider(ctx, a.g2pLabel, "g2p", err)
	observe.EndSpan(span, err)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrPhonemization, err)
	}
	return out, nil
}

// checkPhonemes requires one non-empty phoneme string per word.
func checkPhonemes(words, phonemes []string) error {
	if len(phonemes) != len(words) {
		return fmt.Errorf("got %d phoneme strings for %d words", len(phonemes), len(words))
	}
	for i, ph := range phonemes {
		if strings.TrimSpace(ph) == "" {
			return fmt.Errorf("no phonemes for word %q", words[i])
		}
	}
	return nil
}

func (a *Analyzer) recordProvider(ctx context.Context, name, kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		a.metrics.RecordProviderError(ctx, name, kind)
	}
	a.metrics.RecordProviderRequest(ctx, name, kind, status)
}

func lowerAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(w)
	}
	return out
}

// timedSource records timing measurement latency.
type timedSource struct {
	src     scoring.TimingSource
	metrics *observe.Metrics
}

func (t *timedSource) MeasureTiming(ctx context.Context, audioPath string) (scoring.Timing, error) {
	ctx, span := observe.StartSpan(ctx, "assess.measureTiming")
	start := time.Now()
	timing, err := t.src.MeasureTiming(ctx, audioPath)
	t.metrics.TimingDuration.Record(ctx, time.Since(start).Seconds())
	observe.EndSpan(span, err)
	return timing, err
}
