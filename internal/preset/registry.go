package preset

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry and Engine.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides preset management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Preset // Cached presets by ID
	cacheMu sync.RWMutex       // Protects cache
	logger  Logger
}

// NewRegistry creates a new preset registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Preset),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all presets from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	presets, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading presets: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	// Clear and rebuild cache with deep copies
	r.cache = make(map[string]*Preset, len(presets))
	for i := range presets {
		p := presets[i]
		r.cache[p.ID] = p.DeepCopy()
	}

	r.logger.Info("preset cache refreshed", "count", len(presets))
	return nil
}

// GetPreset retrieves a preset by ID.
// The returned preset is a deep copy; callers can safely modify it.
func (r *Registry) GetPreset(_ context.Context, id string) (*Preset, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}
	return nil, ErrPresetNotFound
}

// GetPresetBySlug retrieves a preset by its slug.
// The returned preset is a deep copy.
func (r *Registry) GetPresetBySlug(_ context.Context, slug string) (*Preset, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	for _, p := range r.cache {
		if p.Slug == slug {
			return p.DeepCopy(), nil
		}
	}
	return nil, ErrPresetNotFound
}

// ListPresets retrieves all presets from the cache.
// Returns deep copies sorted by sort_order then name for deterministic ordering.
func (r *Registry) ListPresets(_ context.Context) ([]Preset, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	presets := make([]Preset, 0, len(r.cache))
	for _, p := range r.cache {
		presets = append(presets, *p.DeepCopy())
	}
	sortPresets(presets)
	return presets, nil
}

// ListPresetsByDisplay retrieves all presets bound to a specific display.
func (r *Registry) ListPresetsByDisplay(_ context.Context, displayID string) ([]Preset, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	var presets []Preset
	for _, p := range r.cache {
		if p.DisplayID != nil && *p.DisplayID == displayID {
			presets = append(presets, *p.DeepCopy())
		}
	}
	sortPresets(presets)
	return presets, nil
}

// sortPresets sorts presets by sort_order then name, matching the DB query ordering.
func sortPresets(presets []Preset) {
	sort.Slice(presets, func(i, j int) bool {
		if presets[i].SortOrder != presets[j].SortOrder {
			return presets[i].SortOrder < presets[j].SortOrder
		}
		return presets[i].Name < presets[j].Name
	})
}

// CreatePreset validates, persists, and caches a new preset.
func (r *Registry) CreatePreset(ctx context.Context, p *Preset) error {
	// Generate ID and slug if not provided
	if p.ID == "" {
		p.ID = GenerateID()
	}
	if p.Slug == "" {
		p.Slug = GenerateSlug(p.Name)
	}

	// Canonicalise codes so cached presets and capability reports agree.
	// ContinueOnError defaults to false (fail-fast), which keeps a failed
	// input switch from being followed by writes to the wrong input.
	CanonicalizeSteps(p.Steps)
	for i := range p.Steps {
		if p.Steps[i].SortOrder == 0 {
			p.Steps[i].SortOrder = i
		}
	}

	// Validate
	if err := ValidatePreset(p); err != nil {
		return err
	}

	// Persist
	if err := r.repo.Create(ctx, p); err != nil {
		return err
	}

	// Update cache
	r.cacheMu.Lock()
	r.cache[p.ID] = p.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("preset created", "id", p.ID, "name", p.Name)
	return nil
}

// UpdatePreset validates, persists, and updates the cached preset.
func (r *Registry) UpdatePreset(ctx context.Context, p *Preset) error {
	CanonicalizeSteps(p.Steps)

	// Validate
	if err := ValidatePreset(p); err != nil {
		return err
	}

	// Persist
	if err := r.repo.Update(ctx, p); err != nil {
		return err
	}

	// Update cache
	r.cacheMu.Lock()
	r.cache[p.ID] = p.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("preset updated", "id", p.ID, "name", p.Name)
	return nil
}

// DeletePreset removes a preset from persistence and cache.
func (r *Registry) DeletePreset(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("preset deleted", "id", id)
	return nil
}

// GetPresetCount returns the number of cached presets.
func (r *Registry) GetPresetCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
