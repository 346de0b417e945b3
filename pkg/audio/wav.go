package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	// ErrInvalid is returned when the input is not a readable WAV container.
	ErrInvalid = errors.New("audio: invalid wav file")

	// ErrUnsupported is returned for WAV encodings other than integer PCM.
	ErrUnsupported = errors.New("audio: unsupported wav encoding")

	// ErrEmpty is returned when the file decodes to zero samples.
	ErrEmpty = errors.New("audio: no samples")
)

// wavFormatPCM is the WAVE_FORMAT_PCM format tag.
const wavFormatPCM = 1

// Load decodes the WAV file at path into a mono [Clip].
func Load(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a WAV stream into a mono [Clip]. Multi-channel audio is
// downmixed by averaging the channels of each frame.
func Decode(r io.ReadSeeker) (*Clip, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if d.NumChans >= 1 && d.BitDepth >= 8 {
			return nil, ErrEmpty
		}
		return nil, ErrInvalid
	}
	if d.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: format tag %d", ErrUnsupported, d.WavAudioFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	channels := buf.Format.NumChannels
	if channels < 1 {
		return nil, ErrInvalid
	}
	frames := len(buf.Data) / channels
	if frames == 0 {
		return nil, ErrEmpty
	}

	scale, offset := sampleScale(buf.SourceBitDepth)
	samples := make([]float32, frames)
	for i := range frames {
		var sum float64
		for ch := range channels {
			sum += float64(buf.Data[i*channels+ch]) - offset
		}
		samples[i] = float32(sum / float64(channels) / scale)
	}
	return &Clip{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

// sampleScale returns the full-scale magnitude and DC offset of integer PCM
// at the given bit depth. 8-bit WAV samples are unsigned.
func sampleScale(bitDepth int) (scale, offset float64) {
	if bitDepth == 8 {
		return 128, 128
	}
	return float64(int64(1) << (bitDepth - 1)), 0
}

// Encode writes c to w as a mono 16-bit PCM WAV file.
func Encode(w io.WriteSeeker, c *Clip) error {
	enc := wav.NewEncoder(w, c.SampleRate, 16, 1, wavFormatPCM)
	data := make([]int, len(c.Samples))
	pcm := c.PCM16()
	for i := range data {
		data[i] = int(int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: c.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalize wav: %w", err)
	}
	return nil
}

// WriteFile encodes c as a WAV file at path.
func WriteFile(path string, c *Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create %q: %w", path, err)
	}
	if err := Encode(f, c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
