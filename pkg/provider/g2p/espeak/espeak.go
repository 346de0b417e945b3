// Package espeak provides a G2P provider that shells out to the espeak-ng
// (or espeak) command-line synthesiser in IPA mode.
//
// Each word is phonemized by its own process so that espeak never merges
// neighbouring words. Stress marks are removed from the output.
package espeak

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/phonoscore/pkg/provider/g2p"
)

const defaultBinary = "espeak-ng"

// stressMarks are removed from every phoneme string.
var stressMarks = strings.NewReplacer("ˈ", "", "ˌ", "")

// Compile-time assertion that Provider implements g2p.Provider.
var _ g2p.Provider = (*Provider)(nil)

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBinary sets the executable name or path. Defaults to "espeak-ng".
func WithBinary(bin string) Option {
	return func(p *Provider) {
		p.binary = bin
	}
}

// WithParallelism bounds the number of concurrent espeak processes per call.
// Defaults to the number of CPUs.
func WithParallelism(n int) Option {
	return func(p *Provider) {
		p.parallelism = n
	}
}

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(p *Provider) {
		p.run = r
	}
}

// Provider implements g2p.Provider using the espeak-ng CLI.
type Provider struct {
	binary      string
	parallelism int
	run         Runner
}

// New creates a Provider with the given options applied.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{
		binary:      defaultBinary,
		parallelism: runtime.NumCPU(),
		run:         execRunner,
	}
	for _, o := range opts {
		o(p)
	}
	if p.binary == "" {
		return nil, errors.New("espeak: binary must not be empty")
	}
	if p.parallelism < 1 {
		p.parallelism = 1
	}
	return p, nil
}

// Phonemize implements g2p.Provider.
func (p *Provider) Phonemize(ctx context.Context, words []string, language string) ([]string, error) {
	if language == "" {
		language = g2p.DefaultLanguage
	}
	out := make([]string, len(words))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for i, w := range words {
		word := strings.ToLower(strings.TrimSpace(w))
		if word == "" {
			continue
		}
		g.Go(func() error {
			raw, err := p.run(gctx, p.binary, "-q", "--ipa", "-v", language, word)
			if err != nil {
				return fmt.Errorf("espeak: phonemize %q: %w", word, err)
			}
			out[i] = normalize(raw)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Check verifies that the espeak binary can be executed. It is suitable as a
// readiness probe.
func (p *Provider) Check(ctx context.Context) error {
	if _, err := p.run(ctx, p.binary, "--version"); err != nil {
		return fmt.Errorf("espeak: %w", err)
	}
	return nil
}

// normalize strips stress marks and collapses whitespace in espeak output.
func normalize(raw []byte) string {
	s := stressMarks.Replace(string(raw))
	return strings.Join(strings.Fields(s), " ")
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}
