// Package api exposes the pronunciation analyzer over HTTP.
//
//	POST /v1/analyze   multipart form: "audio" (WAV file) and "text"
//	                   (form value or uploaded text file)
//
// Responses are JSON. Errors carry {"error": "..."} with a status derived from
// the analyzer's sentinel errors.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrWong99/phonoscore/internal/assess"
	"github.com/MrWong99/phonoscore/internal/observe"
	"github.com/MrWong99/phonoscore/internal/scoring"
)

const (
	// DefaultMaxUploadBytes caps a request body when no limit is configured.
	DefaultMaxUploadBytes = 32 << 20

	// formMemory is how much of a multipart body is held in memory before
	// parts spill to temporary files.
	formMemory = 8 << 20

	// maxTextBytes caps an uploaded reference text file.
	maxTextBytes = 64 << 10
)

// Analyzer is the subset of [assess.Analyzer] the handler needs.
type Analyzer interface {
	AnalyzeAudio(ctx context.Context, r io.Reader, referenceText string) (*assess.Result, error)
}

// Handler serves the analysis endpoint.
type Handler struct {
	analyzer  Analyzer
	maxUpload int64
}

// Option configures a [Handler].
type Option func(*Handler)

// WithMaxUploadBytes caps the request body size.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// New returns a Handler backed by an.
func New(an Analyzer, opts ...Option) *Handler {
	h := &Handler{analyzer: an, maxUpload: DefaultMaxUploadBytes}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/analyze", h.Analyze)
}

// WordResponse is one reference word in an [AnalyzeResponse].
type WordResponse struct {
	Word   string `json:"word"`
	Rating int    `json:"rating"`
	Label  string `json:"label"`
}

// AnalyzeResponse is the body of a successful analysis.
type AnalyzeResponse struct {
	Accuracy     float64        `json:"accuracy"`
	Fluency      float64        `json:"fluency"`
	AccuracyBand string         `json:"accuracy_band"`
	FluencyBand  string         `json:"fluency_band"`
	Transcript   string         `json:"transcript"`
	Words        []WordResponse `json:"words"`
}

// NewAnalyzeResponse converts an analyzer result to its wire form.
func NewAnalyzeResponse(res *assess.Result) AnalyzeResponse {
	out := AnalyzeResponse{
		Accuracy:     res.Accuracy,
		Fluency:      res.Fluency,
		AccuracyBand: scoring.Band(res.Accuracy),
		FluencyBand:  scoring.Band(res.Fluency),
		Transcript:   res.Transcript,
		Words:        make([]WordResponse, len(res.Words)),
	}
	for i, w := range res.Words {
		out.Words[i] = WordResponse{Word: w.Word, Rating: int(w.Rating), Label: w.Rating.String()}
	}
	return out
}

type errorResponse struct {
	Error string `json:"error"`
}

// Analyze handles POST /v1/analyze.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooBig.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "expected a multipart/form-data body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	text, err := referenceText(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	audioFile, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio is missing")
		return
	}
	defer audioFile.Close()

	res, err := h.analyzer.AnalyzeAudio(r.Context(), audioFile, text)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			observe.Logger(r.Context()).Error("analysis failed", "err", err)
		} else {
			observe.Logger(r.Context()).Info("analysis rejected", "status", status, "err", err)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, NewAnalyzeResponse(res))
}

// referenceText reads the "text" field, accepting either a plain form value
// or an uploaded text file.
func referenceText(r *http.Request) (string, error) {
	if v := r.FormValue("text"); strings.TrimSpace(v) != "" {
		return v, nil
	}
	f, _, err := r.FormFile("text")
	if err != nil {
		return "", errors.New("text is missing")
	}
	defer f.Close()
	b, err := io.ReadAll(io.LimitReader(f, maxTextBytes+1))
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	if len(b) > maxTextBytes {
		return "", fmt.Errorf("text exceeds %d bytes", maxTextBytes)
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", errors.New("text is missing")
	}
	return string(b), nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, assess.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, assess.ErrDegenerateAudio):
		return http.StatusUnprocessableEntity
	case errors.Is(err, assess.ErrTranscription), errors.Is(err, assess.ErrPhonemization):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
