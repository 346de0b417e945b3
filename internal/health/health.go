// Package health serves the liveness and readiness probes of the scoring
// service.
//
// /healthz always answers 200 while the process can serve HTTP. /readyz runs
// every registered [Checker] concurrently and answers 200 only when all of
// them pass, so a load balancer stops routing uploads to an instance whose
// phonemizer binary or transcription backend is gone.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single readiness check.
const DefaultTimeout = 5 * time.Second

// Checker is a named dependency probe. Check returns nil when the dependency
// is usable and must honour ctx cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
	timeout  time.Duration
}

// Option configures a [Handler].
type Option func(*Handler)

// WithTimeout overrides [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// New creates a Handler over the given checkers.
func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{
		checkers: append([]Checker(nil), checkers...),
		timeout:  DefaultTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := h.run(r.Context())

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	for _, v := range checks {
		if v != "ok" {
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, status, res)
}

// run evaluates all checkers in parallel. A failing checker never cancels
// its siblings; every check reports its own outcome.
func (h *Handler) run(ctx context.Context) map[string]string {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
	)
	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			outcome := "ok"
			if err := c.Check(cctx); err != nil {
				outcome = "fail: " + err.Error()
			}
			mu.Lock()
			checks[c.Name] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return checks
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
