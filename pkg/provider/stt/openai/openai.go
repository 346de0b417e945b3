// Package openai provides an STT provider backed by the OpenAI audio
// transcription API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/phonoscore/pkg/provider/stt"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = oai.AudioModelWhisper1

const defaultLanguage = "en"

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client   oai.Client
	model    string
	language string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL    string
	language   string
	timeout    time.Duration
	maxRetries int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithLanguage sets the ISO-639-1 language hint sent with every request.
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often the client retries failed requests. A
// negative value keeps the client default.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs a new OpenAI transcription Provider.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{language: defaultLanguage, maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
	}, nil
}

// Transcribe uploads the file at audioPath and returns the recognised text.
// Decoding uses temperature 0.
func (p *Provider) Transcribe(ctx context.Context, audioPath string) (stt.Transcript, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: open audio: %w", err)
	}
	defer f.Close()

	params := oai.AudioTranscriptionNewParams{
		File:           f,
		Model:          p.model,
		ResponseFormat: oai.AudioResponseFormatJSON,
		Temperature:    oai.Float(0),
	}
	if p.language != "" {
		params.Language = oai.String(p.language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: %w", err)
	}
	return stt.Transcript{
		Text:     strings.TrimSpace(resp.Text),
		Language: p.language,
	}, nil
}

// ModelID returns the model used for transcription.
func (p *Provider) ModelID() string {
	return p.model
}
