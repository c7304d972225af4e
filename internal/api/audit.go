package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/openddc/ddc-core/internal/audit"
	"github.com/openddc/ddc-core/internal/auth"
)

// auditChanSize is the audit entry queue length. Writes are best-effort:
// a full queue drops entries rather than blocking request handlers.
const auditChanSize = 256

// auditLog queues an audit entry for asynchronous persistence.
func (s *Server) auditLog(entry *audit.Entry) {
	if s.auditCh == nil {
		return
	}
	select {
	case s.auditCh <- entry:
	default:
		s.logger.Warn("audit log channel full, dropping entry",
			"display_id", entry.DisplayID,
			"actor", entry.Actor,
		)
	}
}

// drainAuditLog writes queued audit entries serially. On shutdown it
// flushes whatever is still queued before returning.
func (s *Server) drainAuditLog(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case entry := <-s.auditCh:
					if err := s.auditRepo.Create(context.Background(), entry); err != nil {
						s.logger.Error("audit write failed", "error", err)
					}
				default:
					return
				}
			}
		case entry := <-s.auditCh:
			if err := s.auditRepo.Create(context.Background(), entry); err != nil {
				s.logger.Error("audit write failed", "error", err)
			}
		}
	}
}

// handleListAudit returns audit entries matching the query filters.
// Admin only.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermAuditRead); !ok {
		return
	}

	if s.auditRepo == nil {
		writeUnavailable(w, "audit log unavailable")
		return
	}

	q := r.URL.Query()
	for _, param := range []string{"display_id", "code", "actor", "source", "result"} {
		if len(q.Get(param)) > maxQueryParamLen {
			writeBadRequest(w, param+" parameter too long")
			return
		}
	}

	filter := audit.Filter{
		DisplayID: q.Get("display_id"),
		Code:      q.Get("code"),
		Actor:     q.Get("actor"),
		Source:    q.Get("source"),
		Result:    q.Get("result"),
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeBadRequest(w, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeBadRequest(w, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("audit list failed", "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
