package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openddc/ddc-core/internal/audit"
	"github.com/openddc/ddc-core/internal/auth"
	"github.com/openddc/ddc-core/internal/bridges/ddc"
	"github.com/openddc/ddc-core/internal/display"
)

// maxQueryParamLen bounds filter query parameters. Slugs, codes and tags
// are all far shorter than this.
const maxQueryParamLen = 100

// handleListDisplays returns registered displays, optionally filtered by
// one of protocol, bridge, capability, health or tag.
func (s *Server) handleListDisplays(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermDisplayRead); !ok {
		return
	}

	q := r.URL.Query()
	for _, param := range []string{"protocol", "bridge", "capability", "health", "tag"} {
		if len(q.Get(param)) > maxQueryParamLen {
			writeBadRequest(w, param+" parameter too long")
			return
		}
	}

	var (
		displays []display.Display
		err      error
	)
	switch {
	case q.Get("protocol") != "":
		displays, err = s.registry.GetDisplaysByProtocol(r.Context(), display.Protocol(q.Get("protocol")))
	case q.Get("bridge") != "":
		displays, err = s.registry.GetDisplaysByBridge(r.Context(), q.Get("bridge"))
	case q.Get("capability") != "":
		displays, err = s.registry.GetDisplaysByCapability(r.Context(), display.Capability(q.Get("capability")))
	case q.Get("health") != "":
		displays, err = s.registry.GetDisplaysByHealthStatus(r.Context(), display.HealthStatus(q.Get("health")))
	case q.Get("tag") != "":
		displays, err = s.registry.GetDisplaysByTag(r.Context(), q.Get("tag"))
	default:
		displays, err = s.registry.ListDisplays(r.Context())
	}
	if err != nil {
		if isDisplayValidationError(err) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("display list failed", "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"displays": displays,
		"count":    len(displays),
	})
}

// handleGetDisplay returns one display by ID.
func (s *Server) handleGetDisplay(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermDisplayRead); !ok {
		return
	}

	id := chi.URLParam(r, "id")
	d, err := s.registry.GetDisplay(r.Context(), id)
	if err != nil {
		if errors.Is(err, display.ErrDisplayNotFound) {
			writeNotFound(w, "display not found")
			return
		}
		s.logger.Error("display lookup failed", "error", err, "display_id", id)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// handleCreateDisplay registers a new display.
func (s *Server) handleCreateDisplay(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermDisplayManage); !ok {
		return
	}

	var d display.Display
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if err := s.registry.CreateDisplay(r.Context(), &d); err != nil {
		switch {
		case errors.Is(err, display.ErrDisplayExists):
			writeConflict(w, err.Error())
		case isDisplayValidationError(err):
			writeValidationError(w, err.Error())
		default:
			s.logger.Error("display create failed", "error", err)
			writeInternalError(w)
		}
		return
	}

	writeJSON(w, http.StatusCreated, d)
}

// handleUpdateDisplay applies a full update to an existing display.
// Fields absent from the body keep their current values.
func (s *Server) handleUpdateDisplay(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermDisplayManage); !ok {
		return
	}

	id := chi.URLParam(r, "id")
	existing, err := s.registry.GetDisplay(r.Context(), id)
	if err != nil {
		if errors.Is(err, display.ErrDisplayNotFound) {
			writeNotFound(w, "display not found")
			return
		}
		s.logger.Error("display lookup failed", "error", err, "display_id", id)
		writeInternalError(w)
		return
	}

	if err := json.NewDecoder(r.Body).Decode(existing); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	existing.ID = id

	if err := s.registry.UpdateDisplay(r.Context(), existing); err != nil {
		switch {
		case errors.Is(err, display.ErrDisplayNotFound):
			writeNotFound(w, "display not found")
		case errors.Is(err, display.ErrDisplayExists):
			writeConflict(w, err.Error())
		case isDisplayValidationError(err):
			writeValidationError(w, err.Error())
		default:
			s.logger.Error("display update failed", "error", err, "display_id", id)
			writeInternalError(w)
		}
		return
	}

	writeJSON(w, http.StatusOK, existing)
}

// handleDeleteDisplay removes a display from the registry.
func (s *Server) handleDeleteDisplay(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermDisplayManage); !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.registry.DeleteDisplay(r.Context(), id); err != nil {
		if errors.Is(err, display.ErrDisplayNotFound) {
			writeNotFound(w, "display not found")
			return
		}
		s.logger.Error("display delete failed", "error", err, "display_id", id)
		writeInternalError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleDisplayStats returns registry aggregate counts.
func (s *Server) handleDisplayStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermDisplayRead); !ok {
		return
	}

	stats := s.registry.GetStats()

	byType := make(map[string]int, len(stats.ByType))
	for k, v := range stats.ByType {
		byType[string(k)] = v
	}
	byProtocol := make(map[string]int, len(stats.ByProtocol))
	for k, v := range stats.ByProtocol {
		byProtocol[string(k)] = v
	}
	byHealth := make(map[string]int, len(stats.ByHealthStatus))
	for k, v := range stats.ByHealthStatus {
		byHealth[string(k)] = v
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_displays": stats.TotalDisplays,
		"by_type":        byType,
		"by_protocol":    byProtocol,
		"by_health":      byHealth,
	})
}

// handleGetDisplayState returns the display's last known VCP state.
func (s *Server) handleGetDisplayState(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermDisplayRead); !ok {
		return
	}

	id := chi.URLParam(r, "id")
	d, err := s.registry.GetDisplay(r.Context(), id)
	if err != nil {
		if errors.Is(err, display.ErrDisplayNotFound) {
			writeNotFound(w, "display not found")
			return
		}
		s.logger.Error("display lookup failed", "error", err, "display_id", id)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"display_id":       d.ID,
		"state":            d.State,
		"state_updated_at": d.StateUpdatedAt,
		"health_status":    d.HealthStatus,
	})
}

// displayCommandRequest is the body of POST /displays/{id}/commands.
type displayCommandRequest struct {
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// handleDisplayCommand publishes a command to the display's protocol
// bridge. The write is asynchronous: the handler answers 202 once the
// command is on the wire, and the resulting state change arrives on the
// WebSocket when the bridge confirms it.
func (s *Server) handleDisplayCommand(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authorise(w, r, auth.PermDisplayControl)
	if !ok {
		return
	}

	var req displayCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}
	if req.Command == "set_feature" {
		if req.Parameters == nil || req.Parameters["feature"] == nil {
			writeBadRequest(w, "set_feature requires a feature parameter")
			return
		}
		if req.Parameters["value"] == nil {
			writeBadRequest(w, "set_feature requires a value parameter")
			return
		}
	}

	id := chi.URLParam(r, "id")
	d, err := s.registry.GetDisplay(r.Context(), id)
	if err != nil {
		if errors.Is(err, display.ErrDisplayNotFound) {
			writeNotFound(w, "display not found")
			return
		}
		s.logger.Error("display lookup failed", "error", err, "display_id", id)
		writeInternalError(w)
		return
	}

	if s.mqtt == nil || !s.mqtt.IsConnected() {
		writeUnavailable(w, "command transport unavailable")
		return
	}

	address := display.BusAddress(d.Address)
	if address == "" {
		writeConflict(w, "display has no bus address")
		return
	}

	cmd := ddc.CommandMessage{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		DisplayID:  d.ID,
		Command:    req.Command,
		Parameters: req.Parameters,
		Source:     audit.SourceAPI,
		UserID:     claims.Subject,
	}
	payload, err := json.Marshal(&cmd)
	if err != nil {
		s.logger.Error("command marshal failed", "error", err)
		writeInternalError(w)
		return
	}

	topic := s.topics.BridgeCommand(string(d.Protocol), ddc.EncodeTopicAddress(address))
	if err := s.mqtt.Publish(topic, payload, 1, false); err != nil {
		s.logger.Error("command publish failed", "error", err, "topic", topic)
		writeInternalError(w)
		return
	}

	s.auditCommand(claims.Subject, d.ID, req)

	s.logger.Info("display command published",
		"display_id", d.ID,
		"command", req.Command,
		"command_id", cmd.ID,
		"user_id", claims.Subject,
	)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"command_id": cmd.ID,
		"status":     "accepted",
		"message":    "command published, state update will follow via WebSocket",
	})
}

// auditCommand records an audit entry for a published command. Feature
// writes land with their code and value; other commands carry the command
// name in the details.
func (s *Server) auditCommand(actor, displayID string, req displayCommandRequest) {
	entry := &audit.Entry{
		Actor:     actor,
		Source:    audit.SourceAPI,
		DisplayID: displayID,
		Result:    audit.ResultOK,
	}

	if req.Command == "set_feature" {
		if feature, ok := req.Parameters["feature"].(string); ok {
			entry.Code = codeForStateKey(feature)
		}
		if value, ok := numericState(req.Parameters["value"]); ok {
			entry.Value = value
		}
	} else {
		entry.Code = req.Command
		entry.Details = map[string]any{"command": req.Command}
	}

	s.auditLog(entry)
}

// handleGetCapabilities returns the display's parsed capability report.
func (s *Server) handleGetCapabilities(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermDisplayRead); !ok {
		return
	}

	id := chi.URLParam(r, "id")
	d, err := s.registry.GetDisplay(r.Context(), id)
	if err != nil {
		if errors.Is(err, display.ErrDisplayNotFound) {
			writeNotFound(w, "display not found")
			return
		}
		s.logger.Error("display lookup failed", "error", err, "display_id", id)
		writeInternalError(w)
		return
	}

	if d.RawCapabilities == "" {
		writeNotFound(w, "display has no capability report recorded")
		return
	}

	report, err := ddc.ParseCapabilities(d.RawCapabilities)
	if err != nil {
		s.logger.Error("capability parse failed", "error", err, "display_id", id)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"display_id":    d.ID,
		"report":        report,
		"feature_codes": report.FeatureCodes(),
		"raw":           d.RawCapabilities,
	})
}

// handleRefreshCapabilities asks the bridge to re-read the capability
// string from the monitor. The refreshed report arrives asynchronously
// via the bridge's discovery flow.
func (s *Server) handleRefreshCapabilities(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermDisplayManage); !ok {
		return
	}

	id := chi.URLParam(r, "id")
	d, err := s.registry.GetDisplay(r.Context(), id)
	if err != nil {
		if errors.Is(err, display.ErrDisplayNotFound) {
			writeNotFound(w, "display not found")
			return
		}
		s.logger.Error("display lookup failed", "error", err, "display_id", id)
		writeInternalError(w)
		return
	}

	if s.mqtt == nil || !s.mqtt.IsConnected() {
		writeUnavailable(w, "command transport unavailable")
		return
	}

	address := display.BusAddress(d.Address)
	if address == "" {
		writeConflict(w, "display has no bus address")
		return
	}

	requestID := uuid.NewString()
	msg := ddc.RequestMessage{
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Action:    "refresh_capabilities",
		DisplayID: d.ID,
		Address:   address,
	}
	payload, err := json.Marshal(&msg)
	if err != nil {
		s.logger.Error("request marshal failed", "error", err)
		writeInternalError(w)
		return
	}

	topic := s.topics.BridgeRequest(string(d.Protocol), requestID)
	if err := s.mqtt.Publish(topic, payload, 1, false); err != nil {
		s.logger.Error("request publish failed", "error", err, "topic", topic)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"request_id": requestID,
		"status":     "accepted",
		"message":    "capability refresh requested",
	})
}

// isDisplayValidationError reports whether the error is one of the
// registry's input validation sentinels.
func isDisplayValidationError(err error) bool {
	return errors.Is(err, display.ErrInvalidDisplay) ||
		errors.Is(err, display.ErrInvalidProtocol) ||
		errors.Is(err, display.ErrInvalidDisplayType) ||
		errors.Is(err, display.ErrInvalidCapability) ||
		errors.Is(err, display.ErrInvalidAddress) ||
		errors.Is(err, display.ErrInvalidState) ||
		errors.Is(err, display.ErrInvalidName) ||
		errors.Is(err, display.ErrInvalidSlug) ||
		errors.Is(err, display.ErrBridgeNotFound)
}
