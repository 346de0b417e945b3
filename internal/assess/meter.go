package assess

import (
	"context"
	"fmt"

	"github.com/MrWong99/phonoscore/internal/scoring"
	"github.com/MrWong99/phonoscore/pkg/audio"
	"github.com/MrWong99/phonoscore/pkg/provider/vad"
)

// AnalysisSampleRate is the rate clips are resampled to before silence
// detection. Detector frame and hop lengths are tuned in samples at this rate,
// so timing does not depend on how the recording was made.
const AnalysisSampleRate = 22050

// Meter measures speech timing of WAV recordings with a silence detector.
type Meter struct {
	detector vad.Detector
	topDB    float64
}

var _ scoring.TimingSource = (*Meter)(nil)

// NewMeter returns a Meter that treats frames quieter than topDB below the
// clip peak as silence. A non-positive topDB selects [scoring.SilenceTopDB].
func NewMeter(d vad.Detector, topDB float64) *Meter {
	if topDB <= 0 {
		topDB = scoring.SilenceTopDB
	}
	return &Meter{detector: d, topDB: topDB}
}

// MeasureTiming decodes the file at audioPath, resamples it to
// [AnalysisSampleRate] and sums its non-silent intervals. Decoder and detector failures wrap [ErrDegenerateAudio].
func (m *Meter) MeasureTiming(ctx context.Context, audioPath string) (scoring.Timing, error) {
	if err := ctx.Err(); err != nil {
		return scoring.Timing{}, err
	}
	clip, err := audio.Load(audioPath)
	if err != nil {
		return scoring.Timing{}, fmt.Errorf("%w: %w", ErrDegenerateAudio, err)
	}
	total := clip.Seconds()
	clip = clip.Resample(AnalysisSampleRate)
	ivs, err := m.detector.NonSilentIntervals(clip.Samples, clip.SampleRate, m.topDB)
	if err != nil {
		return scoring.Timing{}, fmt.Errorf("%w: %w", ErrDegenerateAudio, err)
	}
	return scoring.Timing{
		Total:     total,
		NonSilent: min(vad.Seconds(ivs, clip.SampleRate), total),
	}, nil
}
