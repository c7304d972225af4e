package display

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
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

// Registry provides display management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	tags    TagRepository // optional; nil disables tag persistence
	cache   map[string]*Display
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a new display registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Display),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetTagRepository enables tag persistence. When set, display tags are
// written through to the tag repository on create/update and bulk-loaded
// into the cache by RefreshCache.
func (r *Registry) SetTagRepository(tags TagRepository) {
	r.tags = tags
}

// RefreshCache reloads all displays from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	displays, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading displays: %w", err)
	}

	var tagsByDisplay map[string][]string
	if r.tags != nil && len(displays) > 0 {
		ids := make([]string, 0, len(displays))
		for i := range displays {
			ids = append(ids, displays[i].ID)
		}
		tagsByDisplay, err = r.tags.GetTagsForDisplays(ctx, ids)
		if err != nil {
			// Tags are secondary; a failed load should not block startup.
			r.logger.Warn("loading display tags failed", "error", err)
			tagsByDisplay = nil
		}
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	// Clear and rebuild cache with deep copies
	r.cache = make(map[string]*Display, len(displays))
	for i := range displays {
		d := displays[i]
		if tags, ok := tagsByDisplay[d.ID]; ok {
			d.Tags = tags
		}
		r.cache[d.ID] = d.DeepCopy()
	}

	r.logger.Info("display cache refreshed", "count", len(displays))
	return nil
}

// GetDisplay retrieves a display by ID.
// Returns ErrDisplayNotFound if the display does not exist.
// The returned display is a deep copy; callers can safely modify it.
func (r *Registry) GetDisplay(ctx context.Context, id string) (*Display, error) {
	// Try cache first
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		// Return a deep copy to prevent external mutation of cache
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a new display not yet cached)
	display, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Cache for future lookups (store a deep copy)
	r.cacheMu.Lock()
	r.cache[id] = display.DeepCopy()
	r.cacheMu.Unlock()

	return display, nil
}

// ListDisplays retrieves all displays.
// The returned displays are deep copies; callers can safely modify them.
func (r *Registry) ListDisplays(ctx context.Context) ([]Display, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	// Return from cache if populated
	if len(r.cache) > 0 {
		displays := make([]Display, 0, len(r.cache))
		for _, d := range r.cache {
			// Deep copy to prevent external mutation of cache
			displays = append(displays, *d.DeepCopy())
		}
		return displays, nil
	}

	// Fall back to repository
	return r.repo.List(ctx)
}

// GetDisplayBySlug retrieves a display by its URL-safe slug.
// The returned display is a deep copy; callers can safely modify it.
func (r *Registry) GetDisplayBySlug(ctx context.Context, slug string) (*Display, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	for _, d := range r.cache {
		if d.Slug == slug {
			// Return a deep copy to prevent external mutation of cache
			return d.DeepCopy(), nil
		}
	}
	return nil, ErrDisplayNotFound
}

// GetDisplayByBus retrieves the display whose address names the given bus.
// The bridge's discovery sync uses this to match probed monitors against
// existing registry entries.
func (r *Registry) GetDisplayByBus(ctx context.Context, bus string) (*Display, error) {
	r.cacheMu.RLock()
	for _, d := range r.cache {
		if BusAddress(d.Address) == bus {
			cpy := d.DeepCopy()
			r.cacheMu.RUnlock()
			return cpy, nil
		}
	}
	r.cacheMu.RUnlock()

	return r.repo.GetByBus(ctx, bus)
}

// GetDisplaysByProtocol retrieves all displays using a specific protocol.
// The returned displays are deep copies; callers can safely modify them.
func (r *Registry) GetDisplaysByProtocol(ctx context.Context, protocol Protocol) ([]Display, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	// Filter from cache if populated
	if len(r.cache) > 0 {
		var displays []Display
		for _, d := range r.cache {
			if d.Protocol == protocol {
				// Deep copy to prevent external mutation of cache
				displays = append(displays, *d.DeepCopy())
			}
		}
		return displays, nil
	}

	return r.repo.ListByProtocol(ctx, protocol)
}

// GetDisplaysByBridge retrieves all displays managed by a specific bridge.
// The returned displays are deep copies; callers can safely modify them.
func (r *Registry) GetDisplaysByBridge(ctx context.Context, bridgeID string) ([]Display, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		var displays []Display
		for _, d := range r.cache {
			if d.BridgeID != nil && *d.BridgeID == bridgeID {
				displays = append(displays, *d.DeepCopy())
			}
		}
		return displays, nil
	}

	return r.repo.ListByBridge(ctx, bridgeID)
}

// GetDisplaysByCapability retrieves all displays that have a specific capability.
// The returned displays are deep copies; callers can safely modify them.
func (r *Registry) GetDisplaysByCapability(ctx context.Context, capability Capability) ([]Display, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	var displays []Display
	for _, d := range r.cache {
		for _, cap := range d.Capabilities {
			if cap == capability {
				// Deep copy to prevent external mutation of cache
				displays = append(displays, *d.DeepCopy())
				break
			}
		}
	}
	return displays, nil
}

// GetDisplaysByHealthStatus retrieves all displays with a specific health status.
// The returned displays are deep copies; callers can safely modify them.
func (r *Registry) GetDisplaysByHealthStatus(ctx context.Context, status HealthStatus) ([]Display, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	var displays []Display
	for _, d := range r.cache {
		if d.HealthStatus == status {
			// Deep copy to prevent external mutation of cache
			displays = append(displays, *d.DeepCopy())
		}
	}
	return displays, nil
}

// GetDisplaysByTag retrieves all displays carrying the given tag.
// The returned displays are deep copies; callers can safely modify them.
func (r *Registry) GetDisplaysByTag(ctx context.Context, tag string) ([]Display, error) {
	normalised := normaliseTag(tag)
	if normalised == "" {
		return nil, nil
	}

	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	var displays []Display
	for _, d := range r.cache {
		for _, t := range d.Tags {
			if t == normalised {
				displays = append(displays, *d.DeepCopy())
				break
			}
		}
	}
	return displays, nil
}

// CreateDisplay creates a new display.
// It validates the display, generates ID and slug if needed, and persists it.
func (r *Registry) CreateDisplay(ctx context.Context, display *Display) error {
	// Generate ID if not provided
	if display.ID == "" {
		display.ID = GenerateID()
	}

	// Generate slug if not provided
	if display.Slug == "" {
		display.Slug = GenerateSlug(display.Name)
	}

	display.Tags = normaliseTags(display.Tags)

	// Validate
	if err := ValidateDisplay(display); err != nil {
		return err
	}

	// Persist
	if err := r.repo.Create(ctx, display); err != nil {
		return err
	}

	if err := r.persistTags(ctx, display); err != nil {
		return err
	}

	// Update cache (store a deep copy to prevent external modification)
	r.cacheMu.Lock()
	r.cache[display.ID] = display.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("display created", "id", display.ID, "name", display.Name)
	return nil
}

// UpdateDisplay updates an existing display.
// It validates the display and persists the changes.
func (r *Registry) UpdateDisplay(ctx context.Context, display *Display) error {
	// Regenerate slug if name changed and slug wasn't explicitly set
	existing, err := r.GetDisplay(ctx, display.ID)
	if err != nil {
		return err
	}
	if display.Name != existing.Name && display.Slug == existing.Slug {
		display.Slug = GenerateSlug(display.Name)
	}

	display.Tags = normaliseTags(display.Tags)

	// Validate
	if err := ValidateDisplay(display); err != nil {
		return err
	}

	// Persist
	if err := r.repo.Update(ctx, display); err != nil {
		return err
	}

	if err := r.persistTags(ctx, display); err != nil {
		return err
	}

	// Update cache (store a deep copy to prevent external modification)
	r.cacheMu.Lock()
	r.cache[display.ID] = display.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("display updated", "id", display.ID, "name", display.Name)
	return nil
}

// persistTags writes the display's tag set through to the tag repository.
func (r *Registry) persistTags(ctx context.Context, display *Display) error {
	if r.tags == nil {
		return nil
	}
	if err := r.tags.SetTags(ctx, display.ID, display.Tags); err != nil {
		return fmt.Errorf("persisting display tags: %w", err)
	}
	return nil
}

// DeleteDisplay removes a display. Associated tags and history rows are
// removed by foreign key cascade.
func (r *Registry) DeleteDisplay(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	// Update cache
	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("display deleted", "id", id)
	return nil
}

// SetDisplayState merges feature values into the state of a display.
// This is optimised for frequent updates from the DDC bridge; keys absent
// from the update keep their cached values, matching the repository's
// json_patch merge.
func (r *Registry) SetDisplayState(ctx context.Context, id string, state State) error {
	if err := r.repo.UpdateState(ctx, id, state); err != nil {
		return err
	}

	// Update cache using deep copy to prevent race conditions
	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		// Create a deep copy with merged state (atomic replacement)
		updated := cached.DeepCopy()
		if updated.State == nil {
			updated.State = make(State, len(state))
		}
		for k, v := range state {
			updated.State[k] = deepCopyValue(v)
		}
		now := time.Now().UTC()
		updated.StateUpdatedAt = &now
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Debug("display state updated", "id", id)
	return nil
}

// SetDisplayHealth updates the health status of a display.
func (r *Registry) SetDisplayHealth(ctx context.Context, id string, status HealthStatus) error {
	now := time.Now().UTC()
	if err := r.repo.UpdateHealth(ctx, id, status, now); err != nil {
		return err
	}

	// Update cache using deep copy to prevent race conditions
	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		// Create a deep copy with updated health (atomic replacement)
		updated := cached.DeepCopy()
		updated.HealthStatus = status
		updated.HealthLastSeen = &now
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Debug("display health updated", "id", id, "status", status)
	return nil
}

// GetDisplayCount returns the number of cached displays.
func (r *Registry) GetDisplayCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDisplays  int
	ByType         map[DisplayType]int
	ByProtocol     map[Protocol]int
	ByHealthStatus map[HealthStatus]int
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		TotalDisplays:  len(r.cache),
		ByType:         make(map[DisplayType]int),
		ByProtocol:     make(map[Protocol]int),
		ByHealthStatus: make(map[HealthStatus]int),
	}

	for _, d := range r.cache {
		stats.ByType[d.Type]++
		stats.ByProtocol[d.Protocol]++
		stats.ByHealthStatus[d.HealthStatus]++
	}

	return stats
}
