package router

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/af-corp/relay/internal/config"
	"github.com/af-corp/relay/internal/router/adapters"
	"github.com/af-corp/relay/internal/types"
)

var ErrBackendNotFound = errors.New("backend not found")

type entry struct {
	profile types.BackendProfile
	adapter adapters.Adapter
}

// Registry holds the {profile, adapter} pair for every configured backend.
// Iteration follows registration order, which is also the router's tie-break order.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Register adds a backend. A nil adapter registers the profile as unavailable:
// it is listed but never routed to or dispatched.
func (r *Registry) Register(profile types.BackendProfile, adapter adapters.Adapter) error {
	if profile.Name == "" {
		return errors.New("register backend: empty name")
	}
	if len(profile.Models) == 0 {
		return fmt.Errorf("register backend %s: no models", profile.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[profile.Name]; ok {
		return fmt.Errorf("register backend %s: already registered", profile.Name)
	}
	profile.Models = append([]string(nil), profile.Models...)
	r.entries[profile.Name] = &entry{profile: profile, adapter: adapter}
	r.order = append(r.order, profile.Name)
	return nil
}

func (r *Registry) IsAvailable(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return ok && e.adapter != nil
}

func (r *Registry) Profile(name string) (types.BackendProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return types.BackendProfile{}, fmt.Errorf("%w: %s", ErrBackendNotFound, name)
	}
	return e.profile, nil
}

// Adapter returns the adapter for an available backend.
func (r *Registry) Adapter(name string) (adapters.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok || e.adapter == nil {
		return nil, false
	}
	return e.adapter, true
}

// Available returns the profiles of available backends in registration order.
func (r *Registry) Available() []types.BackendProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.BackendProfile, 0, len(r.order))
	for _, name := range r.order {
		if e := r.entries[name]; e.adapter != nil {
			out = append(out, e.profile)
		}
	}
	return out
}

// ListProfiles returns every registered profile, available or not, in registration order.
func (r *Registry) ListProfiles() []types.ProfileStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ProfileStatus, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		out = append(out, types.ProfileStatus{BackendProfile: e.profile, Available: e.adapter != nil})
	}
	return out
}

// BuildFromConfig registers every backend in catalog order. Backends without
// credentials are registered without an adapter.
func BuildFromConfig(backends *config.BackendsConfig, logger *slog.Logger) (*Registry, error) {
	registry := NewRegistry()
	for _, cfg := range backends.Backends {
		var adapter adapters.Adapter
		if cfg.Configured() {
			client := &http.Client{
				Timeout: cfg.Timeout,
				Transport: &http.Transport{
					MaxIdleConns:        32,
					MaxIdleConnsPerHost: 16,
					IdleConnTimeout:     90 * time.Second,
					ForceAttemptHTTP2:   true,
				},
			}
			a, err := adapters.New(cfg, client)
			if err != nil {
				return nil, fmt.Errorf("build adapter for %s: %w", cfg.Name, err)
			}
			adapter = a
		}
		if err := registry.Register(cfg.Profile(), adapter); err != nil {
			return nil, err
		}
		logger.Info("backend registered",
			"backend", cfg.Name,
			"family", cfg.Family(),
			"models", len(cfg.Models),
			"available", adapter != nil,
		)
	}
	return registry, nil
}
