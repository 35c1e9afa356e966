// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package provider

import (
	"context"
	"sort"
	"strings"
	"sync"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// Registry holds the configured backends and routes model references to
// them. Routing is by explicit "provider/model" prefix first, then by
// model-name convention, then by having exactly one backend.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a backend under name. Re-registering a name is a wiring
// bug.
func (r *Registry) Register(name string, p Provider) error {
	if name == "" || p == nil {
		return pskyerr.New(pskyerr.CodeProviderRequestInvalid, "provider registration needs a name and a backend")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return pskyerr.Errorf(pskyerr.CodeProviderRequestInvalid, "provider %q already registered", name)
	}
	r.providers[name] = p
	return nil
}

// Get returns the backend registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, pskyerr.Errorf(pskyerr.CodeProviderNotFound, "no provider %q", name)
	}
	return p, nil
}

// Names lists registered backends in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Route resolves a model reference to a usable backend and the bare
// model name to request from it.
func (r *Registry) Route(ctx context.Context, modelRef string) (Provider, string, error) {
	providerName, model := ParseModel(modelRef)
	if model == "" {
		return nil, "", pskyerr.Errorf(pskyerr.CodeProviderRequestInvalid, "empty model reference")
	}

	if providerName == "" {
		providerName = guessProvider(model)
	}

	var p Provider
	if providerName != "" {
		var err error
		if p, err = r.Get(providerName); err != nil {
			return nil, "", ErrNoProvider(modelRef)
		}
	} else if p = r.single(); p == nil {
		return nil, "", ErrNoProvider(modelRef)
	}

	if !p.Available(ctx) {
		return nil, "", pskyerr.Errorf(pskyerr.CodeProviderUpstreamFailure,
			"provider %q is cooling down after a failure", p.Name())
	}
	return p, model, nil
}

// guessProvider maps conventional model name prefixes onto backends.
func guessProvider(model string) string {
	switch {
	case strings.HasPrefix(model, "claude"):
		return "anthropic"
	case strings.HasPrefix(model, "gpt"), strings.HasPrefix(model, "chatgpt"),
		strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return "openai"
	}
	return ""
}

// single returns the only backend, or nil when there are zero or many.
func (r *Registry) single() Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.providers) != 1 {
		return nil
	}
	for _, p := range r.providers {
		return p
	}
	return nil
}

// Close shuts every backend down, joining their errors.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.providers = make(map[string]Provider)
	if len(errs) > 0 {
		return pskyerr.Join(errs...)
	}
	return nil
}
