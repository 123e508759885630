package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/atlasvoice/atlas/pkg/speechio"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider direction. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	input  map[string]func(ProviderEntry) (speechio.InputProvider, error)
	output map[string]func(ProviderEntry) (speechio.OutputProvider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		input:  make(map[string]func(ProviderEntry) (speechio.InputProvider, error)),
		output: make(map[string]func(ProviderEntry) (speechio.OutputProvider, error)),
	}
}

// RegisterInput registers a speech input provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterInput(name string, factory func(ProviderEntry) (speechio.InputProvider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.input[name] = factory
}

// RegisterOutput registers a speech output provider factory under name.
func (r *Registry) RegisterOutput(name string, factory func(ProviderEntry) (speechio.OutputProvider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.output[name] = factory
}

// CreateInput instantiates a speech input provider using the factory
// registered under entry.Name. Returns [ErrProviderNotRegistered] if no
// factory has been registered for that name.
func (r *Registry) CreateInput(entry ProviderEntry) (speechio.InputProvider, error) {
	r.mu.RLock()
	factory, ok := r.input[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: input/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateOutput instantiates a speech output provider using the factory
// registered under entry.Name.
func (r *Registry) CreateOutput(entry ProviderEntry) (speechio.OutputProvider, error) {
	r.mu.RLock()
	factory, ok := r.output[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: output/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
