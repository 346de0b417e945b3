package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/phonoscore/pkg/provider/g2p"
	"github.com/MrWong99/phonoscore/pkg/provider/stt"
	"github.com/MrWong99/phonoscore/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// exists under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its configuration entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is a name-indexed set of factories of one provider kind.
type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f factories[T]) create(entry ProviderEntry) (T, error) {
	factory, ok := f.m[entry.Name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return factory(entry)
}

// Registry maps provider names to constructors for each provider kind. It is
// safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	stt factories[stt.Provider]
	g2p factories[g2p.Provider]
	vad factories[vad.Detector]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		stt: newFactories[stt.Provider]("stt"),
		g2p: newFactories[g2p.Provider]("g2p"),
		vad: newFactories[vad.Detector]("vad"),
	}
}

// RegisterSTT registers a transcriber factory under name, replacing any
// previous registration.
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = f
}

// RegisterG2P registers a phonemizer factory under name.
func (r *Registry) RegisterG2P(name string, f Factory[g2p.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.g2p.m[name] = f
}

// RegisterVAD registers a silence detector factory under name.
func (r *Registry) RegisterVAD(name string, f Factory[vad.Detector]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad.m[name] = f
}

// CreateSTT builds the transcriber registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(entry)
}

// CreateG2P builds the phonemizer registered under entry.Name.
func (r *Registry) CreateG2P(entry ProviderEntry) (g2p.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.g2p.create(entry)
}

// CreateVAD builds the silence detector registered under entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Detector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vad.create(entry)
}
