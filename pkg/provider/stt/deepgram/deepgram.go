// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
//
// The recording is decoded locally, streamed as 16-bit linear PCM in short
// chunks, and the connection is drained after a CloseStream message. The
// final results are joined into one transcript.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/phonoscore/pkg/audio"
	"github.com/MrWong99/phonoscore/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// chunkDuration is how much audio goes into one binary message.
	chunkDuration = 100 * time.Millisecond
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the streaming endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe streams the WAV file at audioPath to Deepgram and returns the
// concatenated final transcript.
func (p *Provider) Transcribe(ctx context.Context, audioPath string) (stt.Transcript, error) {
	clip, err := audio.Load(audioPath)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: %w", err)
	}

	wsURL, err := p.buildURL(clip.SampleRate)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	var finals []result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return writeAudio(gctx, conn, clip.PCM16(), clip.SampleRate)
	})
	g.Go(func() error {
		var err error
		finals, err = readFinals(gctx, conn)
		return err
	})
	if err := g.Wait(); err != nil {
		return stt.Transcript{}, err
	}
	conn.Close(websocket.StatusNormalClosure, "transcription complete")

	return p.merge(finals), nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given
// sample rate.
func (p *Provider) buildURL(sampleRate int) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("channels", "1")
	q.Set("sample_rate", strconv.Itoa(sampleRate))

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p *Provider) merge(finals []result) stt.Transcript {
	var (
		parts []string
		words []stt.WordDetail
		conf  float64
	)
	for _, r := range finals {
		parts = append(parts, r.text)
		words = append(words, r.words...)
		conf += r.confidence
	}
	tr := stt.Transcript{
		Text:     strings.Join(parts, " "),
		Language: p.language,
		Words:    words,
	}
	if len(finals) > 0 {
		tr.Confidence = conf / float64(len(finals))
	}
	return tr
}

// writeAudio sends pcm in chunkDuration slices followed by CloseStream, which
// asks Deepgram to flush and close the connection.
func writeAudio(ctx context.Context, conn *websocket.Conn, pcm []byte, sampleRate int) error {
	chunk := max(2, int(int64(sampleRate)*int64(chunkDuration)/int64(time.Second))*2)
	for off := 0; off < len(pcm); off += chunk {
		end := min(off+chunk, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return fmt.Errorf("deepgram: write audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: close stream: %w", err)
	}
	return nil
}

// readFinals collects final results until the server closes the connection.
func readFinals(ctx context.Context, conn *websocket.Conn) ([]result, error) {
	var finals []result
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return finals, nil
			}
			return nil, fmt.Errorf("deepgram: read: %w", err)
		}
		r, ok := parseDeepgramResponse(msg)
		if !ok || !r.isFinal || strings.TrimSpace(r.text) == "" {
			continue
		}
		finals = append(finals, r)
	}
}

// ---- wire format ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// result is one parsed Results event.
type result struct {
	text       string
	isFinal    bool
	confidence float64
	words      []stt.WordDetail
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message.
// Returns (result, true) on success, or (zero, false) if the message should be ignored.
func parseDeepgramResponse(data []byte) (result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return result{}, false
	}
	if resp.Type != "Results" {
		return result{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return result{}, false
	}

	alt := resp.Channel.Alternatives[0]
	words := make([]stt.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, stt.WordDetail{
			Word:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}

	return result{
		text:       alt.Transcript,
		isFinal:    resp.IsFinal,
		confidence: alt.Confidence,
		words:      words,
	}, true
}
