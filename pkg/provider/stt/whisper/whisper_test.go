package whisper_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/phonoscore/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// inferenceRequest captures what the mock server received.
type inferenceRequest struct {
	fileName string
	fileData []byte
	fields   map[string]string
}

// newMockServer creates a test server that responds to POST /inference with
// body. Every matched request is appended to *reqs.
func newMockServer(t *testing.T, body any, mu *sync.Mutex, reqs *[]inferenceRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		f.Close()

		req := inferenceRequest{fileName: hdr.Filename, fileData: data, fields: map[string]string{}}
		for k, v := range r.MultipartForm.Value {
			req.fields[k] = v[0]
		}
		if reqs != nil {
			mu.Lock()
			*reqs = append(*reqs, req)
			mu.Unlock()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func writeAudio(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "utterance.wav")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// ---- provider construction --------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNew_WithOptions_DoesNotError(t *testing.T) {
	p, err := whisper.New("http://localhost:8080",
		whisper.WithModel("small"),
		whisper.WithLanguage("de"),
		whisper.WithHTTPClient(&http.Client{Timeout: time.Second}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil Provider")
	}
}

// ---- transcription ----------------------------------------------------------

func TestTranscribe_UploadsFileAndHints(t *testing.T) {
	var (
		mu   sync.Mutex
		reqs []inferenceRequest
	)
	srv := newMockServer(t, map[string]any{"text": "  the quick brown fox ", "language": "en"}, &mu, &reqs)
	defer srv.Close()

	p, _ := whisper.New(srv.URL+"/", whisper.WithModel("base.en"), whisper.WithLanguage("en"))
	path := writeAudio(t, "RIFF-fake-audio")

	tr, err := p.Transcribe(context.Background(), path)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "the quick brown fox" {
		t.Errorf("Text = %q, want %q", tr.Text, "the quick brown fox")
	}
	if tr.Language != "en" {
		t.Errorf("Language = %q, want %q", tr.Language, "en")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reqs) != 1 {
		t.Fatalf("server received %d requests, want 1", len(reqs))
	}
	got := reqs[0]
	if got.fileName != "utterance.wav" {
		t.Errorf("file name = %q, want utterance.wav", got.fileName)
	}
	if string(got.fileData) != "RIFF-fake-audio" {
		t.Errorf("file data = %q, want the uploaded bytes", got.fileData)
	}
	want := map[string]string{
		"temperature":     "0.0",
		"response_format": "verbose_json",
		"language":        "en",
		"model":           "base.en",
	}
	for k, v := range want {
		if got.fields[k] != v {
			t.Errorf("field %q = %q, want %q", k, got.fields[k], v)
		}
	}
}

func TestTranscribe_ParsesWordTimings(t *testing.T) {
	body := map[string]any{
		"text": "hello world",
		"segments": []any{
			map[string]any{"words": []any{
				map[string]any{"word": " hello", "start": 0.1, "end": 0.5, "probability": 0.9},
				map[string]any{"word": " world", "start": 0.6, "end": 1.0, "probability": 0.8},
			}},
		},
	}
	srv := newMockServer(t, body, nil, nil)
	defer srv.Close()

	p, _ := whisper.New(srv.URL, whisper.WithLanguage("de"))
	tr, err := p.Transcribe(context.Background(), writeAudio(t, "x"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Language != "de" {
		t.Errorf("Language = %q, want configured fallback %q", tr.Language, "de")
	}
	if len(tr.Words) != 2 {
		t.Fatalf("len(Words) = %d, want 2", len(tr.Words))
	}
	if tr.Words[1].Word != "world" {
		t.Errorf("Words[1].Word = %q, want %q", tr.Words[1].Word, "world")
	}
	if tr.Words[0].Start != 100*time.Millisecond {
		t.Errorf("Words[0].Start = %v, want 100ms", tr.Words[0].Start)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	_, err := p.Transcribe(context.Background(), writeAudio(t, "x"))
	if err == nil {
		t.Fatal("expected error for HTTP 500, got nil")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error %q does not mention the status code", err)
	}
}

func TestTranscribe_MissingFile(t *testing.T) {
	p, _ := whisper.New("http://127.0.0.1:1")
	_, err := p.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Transcribe error = %v, want not-exist", err)
	}
}

func TestTranscribe_ContextCancelled(t *testing.T) {
	srv := newMockServer(t, map[string]any{"text": "late"}, nil, nil)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(ctx, writeAudio(t, "x")); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}
