package preset

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openddc/ddc-core/internal/audit"
	"github.com/openddc/ddc-core/internal/bridges/ddc"
)

// DisplayInfo holds the minimal display information the engine needs for
// command routing and capability checks.
type DisplayInfo struct {
	ID       string
	Protocol string

	// Address is the transport bus address used in command topics ("i2c-4").
	Address string

	// Report is the display's parsed capability report, or nil when the
	// display has not been probed yet. With a nil report every step is
	// attempted; the bridge rejects what the monitor cannot do.
	Report *ddc.CapabilityReport
}

// DisplayRegistry is the interface the engine needs from the display package.
// It provides display information for MQTT command routing.
type DisplayRegistry interface {
	// GetDisplay retrieves display info for routing commands.
	GetDisplay(ctx context.Context, id string) (DisplayInfo, error)
}

// MQTTClient is the interface for publishing commands to protocol bridges.
type MQTTClient interface {
	// Publish sends a message to the specified MQTT topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	// Broadcast sends an event to all clients subscribed to the given channel.
	Broadcast(channel string, payload any)
}

// AuditSink receives one entry per attempted feature write.
// It matches the audit repository's Create method.
type AuditSink interface {
	Create(ctx context.Context, entry *audit.Entry) error
}

// Engine orchestrates preset application.
//
// It loads presets from the registry, resolves the target display, walks
// the steps strictly in order (DDC/CI is a serial bus), skips codes the
// display's capability report does not carry, publishes MQTT commands to
// the protocol bridge, and records the per-step outcome.
//
// Thread Safety: Apply is safe for concurrent use.
type Engine struct {
	registry *Registry
	displays DisplayRegistry
	mqtt     MQTTClient
	hub      WSHub
	repo     Repository // For application logging
	auditor  AuditSink
	logger   Logger
}

// NewEngine creates a new preset engine.
//
// Parameters:
//   - registry: Preset registry for loading preset definitions
//   - displays: Display registry for routing (protocol/address/report lookup)
//   - mqtt: MQTT client for publishing commands to bridges
//   - hub: WebSocket hub for broadcasting apply events (may be nil)
//   - repo: Repository for persisting application records
//   - auditor: Audit sink for the feature-write trail (may be nil)
//   - logger: Logger instance
func NewEngine(registry *Registry, displays DisplayRegistry, mqtt MQTTClient, hub WSHub, repo Repository, auditor AuditSink, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		registry: registry,
		displays: displays,
		mqtt:     mqtt,
		hub:      hub,
		repo:     repo,
		auditor:  auditor,
		logger:   logger,
	}
}

// maxApplyTime is the hard limit for a single preset apply. Even a full
// 32-step preset with settle delays should complete well within this
// window. Keeps a runaway apply from holding its API goroutine open.
const maxApplyTime = 60 * time.Second

// recordWriteTimeout bounds the detached record writes that must survive
// the apply context being cancelled.
const recordWriteTimeout = 5 * time.Second

// Apply applies a preset to a display.
//
// It loads the preset, verifies it's enabled, resolves the target display
// (an explicit displayID wins over the preset's own binding), walks the
// steps in order, and records the result.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - presetID: The preset to apply
//   - displayID: The target display; empty falls back to the preset's binding
//   - actor: The user who triggered the apply (empty for system applies)
//   - source: Where the apply originated (api, mqtt, schedule)
//
// Returns:
//   - string: The application ID for tracking
//   - error: nil on success, or:
//   - ErrPresetNotFound if the preset doesn't exist
//   - ErrPresetDisabled if the preset is disabled
//   - ErrNoDisplay if no target display could be resolved
//   - ErrMQTTUnavailable if the MQTT client is nil
func (e *Engine) Apply(ctx context.Context, presetID, displayID, actor, source string) (string, error) { //nolint:gocognit,gocyclo // preset apply: validates, walks steps, records application
	// Apply execution timeout so a stuck apply cannot run unbounded.
	ctx, cancel := context.WithTimeout(ctx, maxApplyTime)
	defer cancel()

	// Load preset from registry
	p, err := e.registry.GetPreset(ctx, presetID)
	if err != nil {
		return "", err
	}

	// Check enabled
	if !p.Enabled {
		return "", ErrPresetDisabled
	}

	// Resolve the target display: an explicit display wins, then the
	// preset's own binding.
	target := displayID
	if target == "" && p.DisplayID != nil {
		target = *p.DisplayID
	}
	if target == "" {
		return "", ErrNoDisplay
	}

	// Check MQTT availability
	if e.mqtt == nil {
		return "", ErrMQTTUnavailable
	}

	// Look up the display once; every step routes to the same address.
	info, err := e.displays.GetDisplay(ctx, target)
	if err != nil {
		return "", fmt.Errorf("display %q: %w", target, err)
	}

	// Create application record
	now := time.Now().UTC()
	app := &Application{
		ID:          GenerateID(),
		PresetID:    presetID,
		DisplayID:   target,
		TriggeredAt: now,
		Source:      source,
		Status:      StatusPending,
		StepsTotal:  len(p.Steps),
	}
	if actor != "" {
		app.Actor = &actor
	}

	// Persist initial application record
	if createErr := e.repo.CreateApplication(ctx, app); createErr != nil {
		e.logger.Error("failed to create application record", "error", createErr)
		// Continue; applying the preset matters more than the log entry
	}

	started := time.Now().UTC()
	app.StartedAt = &started
	app.Status = StatusRunning

	e.logger.Info("preset apply started",
		"preset_id", presetID,
		"preset_name", p.Name,
		"display_id", target,
		"application_id", app.ID,
		"steps", len(p.Steps),
	)

	results := make([]StepResult, 0, len(p.Steps))
	applied := 0
	failed := 0
	skipped := 0
	aborted := false

	for i, step := range p.Steps {
		res := StepResult{Index: i, Code: step.Code, Value: step.Value}

		if aborted {
			res.Status = StepSkipped
			res.Detail = "aborted by earlier failure"
			if app.Status == StatusCancelled {
				res.Detail = "cancelled"
			}
			results = append(results, res)
			skipped++
			continue
		}

		// Check context cancellation between steps
		select {
		case <-ctx.Done():
			app.Status = StatusCancelled
			aborted = true
			res.Status = StepSkipped
			res.Detail = "cancelled"
			results = append(results, res)
			skipped++
			continue
		default:
		}

		// Skip steps the display's capability report rules out.
		if reason := unsupportedReason(info.Report, step); reason != "" {
			res.Status = StepSkipped
			res.Detail = reason
			results = append(results, res)
			skipped++
			e.logger.Debug("preset step skipped",
				"application_id", app.ID,
				"code", step.Code,
				"reason", reason,
			)
			continue
		}

		stepErr := e.applyStep(ctx, presetID, actor, info, step)
		e.recordAudit(ctx, app, step, stepErr)
		if stepErr != nil {
			res.Status = StepFailed
			res.Detail = stepErr.Error()
			failed++
			if !step.ContinueOnError {
				aborted = true
			}
		} else {
			res.Status = StepApplied
			applied++
		}
		results = append(results, res)
	}

	// Determine final status
	completedAt := time.Now().UTC()
	app.CompletedAt = &completedAt
	app.StepsApplied = applied
	app.StepsFailed = failed
	app.StepsSkipped = skipped
	app.Results = results
	duration := int(completedAt.Sub(started).Milliseconds())
	app.DurationMS = &duration

	switch {
	case app.Status == StatusCancelled:
		// Already set
	case failed > 0 && aborted:
		app.Status = StatusFailed
	case failed > 0:
		app.Status = StatusPartial
	default:
		app.Status = StatusCompleted
	}

	// The final record write must survive the apply context being
	// cancelled, so detach it.
	updateCtx, updateCancel := context.WithTimeout(context.WithoutCancel(ctx), recordWriteTimeout)
	defer updateCancel()
	if updateErr := e.repo.UpdateApplication(updateCtx, app); updateErr != nil {
		e.logger.Error("failed to update application record", "error", updateErr)
	}

	e.logger.Info("preset apply complete",
		"preset_id", presetID,
		"display_id", target,
		"application_id", app.ID,
		"status", app.Status,
		"applied", applied,
		"failed", failed,
		"skipped", skipped,
		"duration_ms", duration,
	)

	// Broadcast WebSocket event
	if e.hub != nil {
		e.hub.Broadcast("preset.applied", map[string]any{
			"preset_id":      presetID,
			"preset_name":    p.Name,
			"display_id":     target,
			"application_id": app.ID,
			"status":         string(app.Status),
			"duration_ms":    duration,
		})
	}

	return app.ID, nil
}

// applyStep publishes a single feature write to the display's bridge.
// It handles the settle delay and MQTT command publishing.
func (e *Engine) applyStep(ctx context.Context, presetID, actor string, info DisplayInfo, step PresetStep) error {
	// Handle settle delay
	if step.DelayMS > 0 {
		select {
		case <-time.After(time.Duration(step.DelayMS) * time.Millisecond):
		case <-ctx.Done():
			return fmt.Errorf("step delayed: %w", ctx.Err())
		}
	}

	cmd := ddc.CommandMessage{
		ID:        GenerateID(),
		Timestamp: time.Now().UTC(),
		DisplayID: info.ID,
		Command:   "set_feature",
		Parameters: map[string]any{
			"feature": step.Code,
			"value":   step.Value,
		},
		Source: "preset:" + presetID,
		UserID: actor,
	}

	payload, marshalErr := json.Marshal(&cmd)
	if marshalErr != nil {
		return fmt.Errorf("marshalling command: %w", marshalErr)
	}

	topic := commandTopic(info)
	if pubErr := e.mqtt.Publish(topic, payload, 1, false); pubErr != nil {
		return fmt.Errorf("publishing to %q: %w", topic, pubErr)
	}

	e.logger.Debug("preset step published",
		"preset_id", presetID,
		"display_id", info.ID,
		"code", step.Code,
		"value", step.Value,
		"topic", topic,
	)

	return nil
}

// recordAudit writes one feature-write entry for an attempted step.
// Audit writes survive apply cancellation; a lost trail entry is worse
// than a slightly late one.
func (e *Engine) recordAudit(ctx context.Context, app *Application, step PresetStep, stepErr error) {
	if e.auditor == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordWriteTimeout)
	defer cancel()

	entry := &audit.Entry{
		Source:    audit.SourcePreset,
		DisplayID: app.DisplayID,
		Code:      step.Code,
		Value:     step.Value,
		Details: map[string]any{
			"preset_id":      app.PresetID,
			"application_id": app.ID,
		},
	}
	if app.Actor != nil {
		entry.Actor = *app.Actor
	}
	if stepErr != nil {
		entry.Result = audit.ResultError
		entry.Error = stepErr.Error()
	}

	if err := e.auditor.Create(ctx, entry); err != nil {
		e.logger.Error("failed to record audit entry", "error", err)
	}
}

// unsupportedReason reports why a step cannot be attempted against the
// display's capability report, or "" when it can. Continuous features
// accept any value; discrete features accept only the values the report
// enumerates.
func unsupportedReason(report *ddc.CapabilityReport, step PresetStep) string {
	if report == nil {
		return ""
	}
	if !report.Supports(step.Code) {
		return "display does not report code " + step.Code
	}
	if !report.SupportsValue(step.Code, ddc.FormatValue(uint16(step.Value))) {
		return fmt.Sprintf("value %02X not in reported set for code %s", step.Value, step.Code)
	}
	return ""
}

// commandTopic builds the command topic for a display. Addresses are
// URL-encoded so device-path buses occupy a single topic level.
func commandTopic(info DisplayInfo) string {
	return ddc.TopicPrefix + "/command/" + info.Protocol + "/" + ddc.EncodeTopicAddress(info.Address)
}
