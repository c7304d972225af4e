package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openddc/ddc-core/internal/auth"
	"github.com/openddc/ddc-core/internal/display"
	"github.com/openddc/ddc-core/internal/infrastructure/influxdb"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// handleGetDisplayHistory returns recent per-feature changes for a
// display, newest first. With ?code= the history is narrowed to one VCP
// code; ?since= (RFC3339) drops older entries; ?limit= caps the count.
func (s *Server) handleGetDisplayHistory(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermHistoryRead); !ok {
		return
	}

	q := r.URL.Query()
	for _, param := range []string{"code", "limit", "since"} {
		if len(q.Get(param)) > maxQueryParamLen {
			writeBadRequest(w, param+" parameter too long")
			return
		}
	}

	limit, err := parseHistoryLimit(q.Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var since time.Time
	if raw := q.Get("since"); raw != "" {
		since, err = parseRFC3339(raw)
		if err != nil {
			writeBadRequest(w, "since must be an RFC3339 timestamp")
			return
		}
	}

	id := chi.URLParam(r, "id")
	if _, err := s.registry.GetDisplay(r.Context(), id); err != nil {
		if errors.Is(err, display.ErrDisplayNotFound) {
			writeNotFound(w, "display not found")
			return
		}
		s.logger.Error("display lookup failed", "error", err, "display_id", id)
		writeInternalError(w)
		return
	}

	if s.stateHistory == nil {
		writeUnavailable(w, "state history unavailable")
		return
	}

	var entries []display.StateHistoryEntry
	if code := q.Get("code"); code != "" {
		entries, err = s.stateHistory.GetFeatureHistory(r.Context(), id, code, limit)
	} else {
		entries, err = s.stateHistory.GetHistory(r.Context(), id, limit)
	}
	if err != nil {
		s.logger.Error("history query failed", "error", err, "display_id", id)
		writeInternalError(w)
		return
	}

	if !since.IsZero() {
		filtered := entries[:0]
		for _, e := range entries {
			if !e.CreatedAt.Before(since) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"display_id": id,
		"history":    entries,
		"count":      len(entries),
	})
}

// defaultMetricsRange is the query window when start/end are omitted.
const defaultMetricsRange = time.Hour

// handleGetDisplayMetrics returns an aggregated time series for one
// feature from the telemetry store. ?code= is required; ?start= and
// ?end= take RFC3339 timestamps (default: the last hour); ?window=
// takes a Go duration for the aggregation bucket (default 60s).
func (s *Server) handleGetDisplayMetrics(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermHistoryRead); !ok {
		return
	}

	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		writeBadRequest(w, "code query parameter is required")
		return
	}
	if len(code) > maxQueryParamLen {
		writeBadRequest(w, "code parameter too long")
		return
	}

	end := time.Now().UTC()
	if raw := q.Get("end"); raw != "" {
		var err error
		end, err = parseRFC3339(raw)
		if err != nil {
			writeBadRequest(w, "end must be an RFC3339 timestamp")
			return
		}
	}
	start := end.Add(-defaultMetricsRange)
	if raw := q.Get("start"); raw != "" {
		var err error
		start, err = parseRFC3339(raw)
		if err != nil {
			writeBadRequest(w, "start must be an RFC3339 timestamp")
			return
		}
	}
	if !start.Before(end) {
		writeBadRequest(w, "start must be before end")
		return
	}

	window := time.Minute
	if raw := q.Get("window"); raw != "" {
		var err error
		window, err = time.ParseDuration(raw)
		if err != nil || window <= 0 {
			writeBadRequest(w, "window must be a positive duration")
			return
		}
	}

	id := chi.URLParam(r, "id")
	if _, err := s.registry.GetDisplay(r.Context(), id); err != nil {
		if errors.Is(err, display.ErrDisplayNotFound) {
			writeNotFound(w, "display not found")
			return
		}
		s.logger.Error("display lookup failed", "error", err, "display_id", id)
		writeInternalError(w)
		return
	}

	if s.influx == nil {
		writeUnavailable(w, "telemetry unavailable")
		return
	}

	points, err := s.influx.QueryFeatureHistory(r.Context(), id, code, start, end, window)
	if err != nil {
		if errors.Is(err, influxdb.ErrNotConnected) || errors.Is(err, influxdb.ErrDisabled) {
			writeUnavailable(w, "telemetry unavailable")
			return
		}
		s.logger.Error("telemetry query failed", "error", err, "display_id", id, "code", code)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"display_id":     id,
		"code":           code,
		"start":          start.UTC().Format(time.RFC3339),
		"end":            end.UTC().Format(time.RFC3339),
		"window_seconds": int64(window.Seconds()),
		"points":         points,
		"count":          len(points),
	})
}

// parseHistoryLimit parses the limit query parameter with bounds.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, errors.New("limit exceeds maximum of 200")
	}
	return limit, nil
}

// parseRFC3339 parses a timestamp accepting both second and nanosecond
// precision, normalised to UTC.
func parseRFC3339(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return time.Time{}, err
		}
	}
	return t.UTC(), nil
}
