package display

import (
	"context"
	"time"
)

// History sources identify where a recorded feature change originated.
const (
	HistorySourceMQTT = "mqtt" // change commanded over the MQTT bridge
	HistorySourceAPI  = "api"  // change commanded through the REST API
	HistorySourcePoll = "poll" // change observed by the bridge's poll cycle
)

// StateHistoryEntry is one recorded change to a single display feature.
// Entries form an append-only log: the bridge and the API record a row
// whenever a feature value changes, and the API serves the log back for
// timelines ("brightness over the last hour") and for auditing what a
// preset actually did.
type StateHistoryEntry struct {
	ID        int64     `json:"id"`
	DisplayID string    `json:"display_id"`
	Feature   string    `json:"feature"`             // command name, e.g. "brightness"
	Code      string    `json:"code"`                // feature code hex, e.g. "10"
	OldValue  *int      `json:"old_value,omitempty"` // nil when no prior value was known
	NewValue  int       `json:"new_value"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// FeatureChange describes a feature-value change to be recorded.
// The ID and timestamp are assigned by the repository.
type FeatureChange struct {
	Feature  string
	Code     string
	OldValue *int
	NewValue int
	Source   string
}

// StateHistoryRepository persists per-feature change records for displays.
//
// Retention is the concern of the concrete implementation; see
// SQLiteStateHistoryRepository.Prune.
type StateHistoryRepository interface {
	// RecordChange appends one feature change for a display.
	//
	// Parameters:
	//   - ctx: context for cancellation
	//   - displayID: the display whose feature changed
	//   - change: the change to record; Code is normalised to upper case
	//
	// Returns an error if the insert fails.
	RecordChange(ctx context.Context, displayID string, change FeatureChange) error

	// GetHistory retrieves recent changes for a display across all
	// features, newest first.
	//
	// Parameters:
	//   - ctx: context for cancellation
	//   - displayID: the display to query
	//   - limit: maximum rows to return; <= 0 selects the default
	//
	// Returns entries ordered by recency, or an error.
	GetHistory(ctx context.Context, displayID string, limit int) ([]StateHistoryEntry, error)

	// GetFeatureHistory retrieves recent changes for one feature of a
	// display, newest first.
	//
	// Parameters:
	//   - ctx: context for cancellation
	//   - displayID: the display to query
	//   - code: feature code hex, case-insensitive
	//   - limit: maximum rows to return; <= 0 selects the default
	//
	// Returns entries ordered by recency, or an error.
	GetFeatureHistory(ctx context.Context, displayID, code string, limit int) ([]StateHistoryEntry, error)
}
