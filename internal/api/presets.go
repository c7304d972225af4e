package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openddc/ddc-core/internal/auth"
	"github.com/openddc/ddc-core/internal/display"
	"github.com/openddc/ddc-core/internal/preset"
)

// maxApplicationsLimit caps the application history page size.
const maxApplicationsLimit = 50

// handleListPresets returns presets, optionally filtered to those
// applicable to one display (bound to it or unbound).
func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermDisplayRead); !ok {
		return
	}

	q := r.URL.Query()
	if len(q.Get("display_id")) > maxQueryParamLen {
		writeBadRequest(w, "display_id parameter too long")
		return
	}

	var (
		presets []preset.Preset
		err     error
	)
	if displayID := q.Get("display_id"); displayID != "" {
		presets, err = s.presetRegistry.ListPresetsByDisplay(r.Context(), displayID)
	} else {
		presets, err = s.presetRegistry.ListPresets(r.Context())
	}
	if err != nil {
		s.logger.Error("preset list failed", "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"presets": presets,
		"count":   len(presets),
	})
}

// handleGetPreset returns one preset by ID.
func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermDisplayRead); !ok {
		return
	}

	id := chi.URLParam(r, "id")
	p, err := s.presetRegistry.GetPreset(r.Context(), id)
	if err != nil {
		if errors.Is(err, preset.ErrPresetNotFound) {
			writeNotFound(w, "preset not found")
			return
		}
		s.logger.Error("preset lookup failed", "error", err, "preset_id", id)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// handleCreatePreset creates a new preset.
func (s *Server) handleCreatePreset(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermPresetManage); !ok {
		return
	}

	var p preset.Preset
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if err := s.presetRegistry.CreatePreset(r.Context(), &p); err != nil {
		switch {
		case errors.Is(err, preset.ErrPresetExists):
			writeConflict(w, err.Error())
		case isPresetValidationError(err):
			writeValidationError(w, err.Error())
		default:
			s.logger.Error("preset create failed", "error", err)
			writeInternalError(w)
		}
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// handleUpdatePreset updates an existing preset.
func (s *Server) handleUpdatePreset(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermPresetManage); !ok {
		return
	}

	id := chi.URLParam(r, "id")
	existing, err := s.presetRegistry.GetPreset(r.Context(), id)
	if err != nil {
		if errors.Is(err, preset.ErrPresetNotFound) {
			writeNotFound(w, "preset not found")
			return
		}
		s.logger.Error("preset lookup failed", "error", err, "preset_id", id)
		writeInternalError(w)
		return
	}

	if err := json.NewDecoder(r.Body).Decode(existing); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	existing.ID = id

	if err := s.presetRegistry.UpdatePreset(r.Context(), existing); err != nil {
		switch {
		case errors.Is(err, preset.ErrPresetNotFound):
			writeNotFound(w, "preset not found")
		case errors.Is(err, preset.ErrPresetExists):
			writeConflict(w, err.Error())
		case isPresetValidationError(err):
			writeValidationError(w, err.Error())
		default:
			s.logger.Error("preset update failed", "error", err, "preset_id", id)
			writeInternalError(w)
		}
		return
	}

	writeJSON(w, http.StatusOK, existing)
}

// handleDeletePreset removes a preset.
func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermPresetManage); !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.presetRegistry.DeletePreset(r.Context(), id); err != nil {
		if errors.Is(err, preset.ErrPresetNotFound) {
			writeNotFound(w, "preset not found")
			return
		}
		s.logger.Error("preset delete failed", "error", err, "preset_id", id)
		writeInternalError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// applyPresetRequest optionally overrides the preset's bound display.
type applyPresetRequest struct {
	DisplayID string `json:"display_id"`
}

// handleApplyPreset walks the preset's steps against the target display.
// The apply runs synchronously; step delays are bounded by the engine's
// own timeout. The full application record, including per-step results,
// comes back in the response, and subscribers see a preset.applied event.
func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authorise(w, r, auth.PermPresetApply)
	if !ok {
		return
	}

	var req applyPresetRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}
	}

	if s.presetEngine == nil {
		writeUnavailable(w, "preset engine unavailable")
		return
	}

	id := chi.URLParam(r, "id")
	applicationID, err := s.presetEngine.Apply(r.Context(), id, req.DisplayID, claims.Subject, "api")
	if err != nil {
		switch {
		case errors.Is(err, preset.ErrPresetNotFound):
			writeNotFound(w, "preset not found")
		case errors.Is(err, preset.ErrPresetDisabled):
			writeConflict(w, "preset is disabled")
		case errors.Is(err, preset.ErrNoDisplay):
			writeBadRequest(w, "preset has no bound display and no display_id was given")
		case errors.Is(err, preset.ErrMQTTUnavailable):
			writeUnavailable(w, "command transport unavailable")
		case errors.Is(err, display.ErrDisplayNotFound):
			writeNotFound(w, "target display not found")
		default:
			s.logger.Error("preset apply failed", "error", err, "preset_id", id)
			writeInternalError(w)
		}
		return
	}

	app, err := s.presetRepo.GetApplication(r.Context(), applicationID)
	if err != nil {
		// The apply ran; losing the record readback is not a failure.
		writeJSON(w, http.StatusOK, map[string]any{
			"application_id": applicationID,
			"status":         "completed",
		})
		return
	}

	writeJSON(w, http.StatusOK, app)
}

// handleListApplications returns recent application runs for a preset.
func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermDisplayRead); !ok {
		return
	}

	limit := maxApplicationsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, "invalid limit")
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	id := chi.URLParam(r, "id")
	if _, err := s.presetRegistry.GetPreset(r.Context(), id); err != nil {
		if errors.Is(err, preset.ErrPresetNotFound) {
			writeNotFound(w, "preset not found")
			return
		}
		s.logger.Error("preset lookup failed", "error", err, "preset_id", id)
		writeInternalError(w)
		return
	}

	apps, err := s.presetRepo.ListApplications(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("application list failed", "error", err, "preset_id", id)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"applications": apps,
		"count":        len(apps),
	})
}

// isPresetValidationError reports whether the error is one of the preset
// registry's input validation sentinels.
func isPresetValidationError(err error) bool {
	return errors.Is(err, preset.ErrInvalidPreset) ||
		errors.Is(err, preset.ErrInvalidStep) ||
		errors.Is(err, preset.ErrInvalidName) ||
		errors.Is(err, preset.ErrInvalidSlug) ||
		errors.Is(err, preset.ErrNoSteps) ||
		errors.Is(err, preset.ErrNoDisplay)
}
