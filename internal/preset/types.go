package preset

import "time"

// Preset is a named, ordered list of VCP feature writes that configures a
// display for a task (e.g. "movie": brightness 1E, colour preset 0B,
// input 11).
type Preset struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`

	// Description is optional free-form text for the UI.
	Description *string `json:"description,omitempty"`

	// DisplayID optionally binds the preset to a single display.
	// Unbound presets name their target display at apply time.
	DisplayID *string `json:"display_id,omitempty"`

	// Enabled controls whether the preset can be applied.
	Enabled bool `json:"enabled"`

	// Steps are the feature writes, applied strictly in order.
	// DDC/CI is a serial bus; steps never run concurrently.
	Steps []PresetStep `json:"steps"`

	// SortOrder controls display ordering in lists.
	SortOrder int `json:"sort_order"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PresetStep is a single VCP feature write within a preset.
type PresetStep struct {
	// Code is the VCP feature code in canonical uppercase hex (e.g. "10").
	Code string `json:"code"`

	// Value is the feature value to write (0-65535).
	Value int `json:"value"`

	// DelayMS is an optional pause before this step, in milliseconds.
	// Used for settle time after input or power switches.
	DelayMS int `json:"delay_ms,omitempty"`

	// ContinueOnError lets later steps run if this one fails.
	// Defaults to false (fail-fast).
	ContinueOnError bool `json:"continue_on_error,omitempty"`

	// SortOrder preserves the authored step order.
	SortOrder int `json:"sort_order"`
}

// DeepCopy creates a complete independent copy of the Preset.
// The steps slice and pointer fields are cloned so modifications to the
// copy do not affect the original. This is essential for cache isolation.
func (p *Preset) DeepCopy() *Preset {
	if p == nil {
		return nil
	}

	cpy := *p // Shallow copy of value fields

	cpy.Description = cloneStringPtr(p.Description)
	cpy.DisplayID = cloneStringPtr(p.DisplayID)

	if p.Steps != nil {
		cpy.Steps = make([]PresetStep, len(p.Steps))
		copy(cpy.Steps, p.Steps)
	}

	return &cpy
}

// cloneStringPtr creates a copy of a string pointer.
func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// ApplicationStatus represents the lifecycle state of a preset application.
type ApplicationStatus string

// Application status constants.
const (
	// StatusPending means the application was created but not started.
	StatusPending ApplicationStatus = "pending"

	// StatusRunning means steps are being applied.
	StatusRunning ApplicationStatus = "running"

	// StatusCompleted means every attempted step was applied.
	// Steps skipped for unsupported codes do not prevent completion.
	StatusCompleted ApplicationStatus = "completed"

	// StatusPartial means some steps failed but the apply ran to the end.
	StatusPartial ApplicationStatus = "partial"

	// StatusFailed means a failing step aborted the apply.
	StatusFailed ApplicationStatus = "failed"

	// StatusCancelled means the context was cancelled mid-apply.
	StatusCancelled ApplicationStatus = "cancelled"
)

// StepStatus is the outcome of one step within an application.
type StepStatus string

// Step outcome constants.
const (
	// StepApplied means the feature write was published to the bridge.
	StepApplied StepStatus = "applied"

	// StepFailed means the step could not be published.
	StepFailed StepStatus = "failed"

	// StepSkipped means the step was not attempted, either because the
	// display does not report the code or after an aborting failure.
	StepSkipped StepStatus = "skipped"
)

// StepResult records the outcome of a single step. An application holds
// one result per step, in step order.
type StepResult struct {
	// Index is the zero-based step position.
	Index int `json:"index"`

	// Code is the VCP feature code the step targets.
	Code string `json:"code"`

	// Value is the value the step carries.
	Value int `json:"value"`

	// Status is the step outcome.
	Status StepStatus `json:"status"`

	// Detail carries the failure message or skip reason.
	Detail string `json:"detail,omitempty"`
}

// Application is the record of one preset apply against a display.
type Application struct {
	// ID is the unique application identifier.
	ID string `json:"id"`

	// PresetID is the preset that was applied.
	PresetID string `json:"preset_id"`

	// DisplayID is the display the steps were applied to.
	DisplayID string `json:"display_id"`

	// TriggeredAt is when the apply was requested.
	TriggeredAt time.Time `json:"triggered_at"`

	// StartedAt is when step execution began.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when step execution finished.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Actor is the user who triggered the apply, if known.
	Actor *string `json:"actor,omitempty"`

	// Source is where the apply originated (api, mqtt, schedule).
	Source string `json:"source"`

	// Status is the overall outcome.
	Status ApplicationStatus `json:"status"`

	// Step counters
	StepsTotal   int `json:"steps_total"`
	StepsApplied int `json:"steps_applied"`
	StepsFailed  int `json:"steps_failed"`
	StepsSkipped int `json:"steps_skipped"`

	// Results holds one entry per step, in step order.
	Results []StepResult `json:"results,omitempty"`

	// DurationMS is the total apply time in milliseconds.
	DurationMS *int `json:"duration_ms,omitempty"`
}
