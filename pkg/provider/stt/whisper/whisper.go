// Package whisper provides whisper.cpp-backed STT providers.
//
// [Provider] talks to a running whisper-server binary, which exposes a REST
// API at POST /inference. [NativeProvider] loads a model in-process through
// the whisper.cpp CGO bindings. Both decode with temperature 0 so repeated
// requests for the same recording produce the same text.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	tr, err := p.Transcribe(ctx, "utterance.wav")
package whisper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrWong99/phonoscore/pkg/provider/stt"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 60 * time.Second
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with, which is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the whisper.cpp server
// (e.g., "en", "de", "auto"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// inferenceResponse is the verbose_json body returned by whisper-server.
type inferenceResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Words []struct {
			Word        string  `json:"word"`
			Start       float64 `json:"start"`
			End         float64 `json:"end"`
			Probability float64 `json:"probability"`
		} `json:"words"`
	} `json:"segments"`
}

// Transcribe uploads the file at audioPath to the /inference endpoint as
// multipart/form-data and returns the recognised text.
func (p *Provider) Transcribe(ctx context.Context, audioPath string) (stt.Transcript, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: open audio: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(p.writeForm(mw, f, filepath.Base(audioPath)))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", pr)
	if err != nil {
		pr.Close()
		return stt.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		pr.Close()
		return stt.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return stt.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return p.toTranscript(result), nil
}

// writeForm streams the multipart body: the audio file followed by the
// decoding hints.
func (p *Provider) writeForm(mw *multipart.Writer, audio io.Reader, name string) error {
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return fmt.Errorf("whisper: write audio data: %w", err)
	}

	fields := [][2]string{
		{"temperature", "0.0"},
		{"response_format", "verbose_json"},
	}
	if p.language != "" {
		fields = append(fields, [2]string{"language", p.language})
	}
	if p.model != "" {
		fields = append(fields, [2]string{"model", p.model})
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return fmt.Errorf("whisper: write %s field: %w", kv[0], err)
		}
	}
	return mw.Close()
}

func (p *Provider) toTranscript(r inferenceResponse) stt.Transcript {
	lang := r.Language
	if lang == "" {
		lang = p.language
	}
	var words []stt.WordDetail
	for _, seg := range r.Segments {
		for _, w := range seg.Words {
			words = append(words, stt.WordDetail{
				Word:       strings.TrimSpace(w.Word),
				Start:      time.Duration(w.Start * float64(time.Second)),
				End:        time.Duration(w.End * float64(time.Second)),
				Confidence: w.Probability,
			})
		}
	}
	return stt.Transcript{
		Text:     strings.TrimSpace(r.Text),
		Language: lang,
		Words:    words,
	}
}
