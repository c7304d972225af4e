package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openddc/ddc-core/internal/auth"
)

// createUserRequest is the body of POST /users.
type createUserRequest struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Password    string    `json:"password"`
	Role        auth.Role `json:"role"`
}

// updateUserRequest is the body of PUT /users/{id}. Absent fields keep
// their current values.
type updateUserRequest struct {
	DisplayName *string    `json:"display_name"`
	Role        *auth.Role `json:"role"`
	IsActive    *bool      `json:"is_active"`
}

// resetPasswordRequest is the body of PUT /users/{id}/password.
type resetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// handleCreateUser creates a user account. Admin only.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authorise(w, r, auth.PermUserManage)
	if !ok {
		return
	}

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}
	if !auth.IsValidUsername(req.Username) {
		writeValidationError(w, "username may contain letters, digits, dots, underscores and hyphens")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeValidationError(w, "password must be at least 8 characters")
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleViewer
	}
	if !auth.IsValidUserRole(req.Role) {
		writeValidationError(w, "role must be one of viewer, operator, admin")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("password hashing failed", "error", err)
		writeInternalError(w)
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	user := &auth.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         req.Role,
		IsActive:     true,
		CreatedBy:    claims.Subject,
	}

	if err := s.userRepo.Create(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrUsernameExists) {
			writeConflict(w, "username already exists")
			return
		}
		s.logger.Error("user create failed", "error", err)
		writeInternalError(w)
		return
	}

	s.logger.Info("user created",
		"username", user.Username,
		"role", user.Role,
		"created_by", claims.Subject,
	)
	writeJSON(w, http.StatusCreated, user)
}

// handleListUsers returns all user accounts. Admin only.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermUserManage); !ok {
		return
	}

	users, err := s.userRepo.List(r.Context())
	if err != nil {
		s.logger.Error("user list failed", "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleGetUser returns one user account. Admin only.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermUserManage); !ok {
		return
	}

	id := chi.URLParam(r, "id")
	user, err := s.userRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("user lookup failed", "error", err, "user_id", id)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleUpdateUser patches a user account. Admins cannot change their own
// role or deactivate themselves; that path leads to a system with no
// administrators.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authorise(w, r, auth.PermUserManage)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	user, err := s.userRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("user lookup failed", "error", err, "user_id", id)
		writeInternalError(w)
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if id == claims.Subject {
		if req.Role != nil && *req.Role != user.Role {
			writeForbidden(w, "cannot change your own role")
			return
		}
		if req.IsActive != nil && !*req.IsActive {
			writeForbidden(w, "cannot deactivate your own account")
			return
		}
	}

	if req.DisplayName != nil {
		user.DisplayName = *req.DisplayName
	}
	if req.Role != nil {
		if !auth.IsValidUserRole(*req.Role) {
			writeValidationError(w, "role must be one of viewer, operator, admin")
			return
		}
		user.Role = *req.Role
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := s.userRepo.Update(r.Context(), user); err != nil {
		s.logger.Error("user update failed", "error", err, "user_id", id)
		writeInternalError(w)
		return
	}

	// A role change or deactivation must not leave live sessions behind.
	if req.Role != nil || (req.IsActive != nil && !user.IsActive) {
		if err := s.tokenRepo.RevokeAllForUser(r.Context(), id); err != nil {
			s.logger.Error("session revocation failed", "error", err, "user_id", id)
		}
	}

	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUser removes a user account and revokes their sessions.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authorise(w, r, auth.PermUserManage)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if id == claims.Subject {
		writeForbidden(w, "cannot delete your own account")
		return
	}

	if err := s.userRepo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("user delete failed", "error", err, "user_id", id)
		writeInternalError(w)
		return
	}

	if err := s.tokenRepo.RevokeAllForUser(r.Context(), id); err != nil {
		s.logger.Error("session revocation failed", "error", err, "user_id", id)
	}

	s.logger.Info("user deleted", "user_id", id, "deleted_by", claims.Subject)
	w.WriteHeader(http.StatusNoContent)
}

// handleResetUserPassword sets a new password for a user without their
// current one. Admin only; their sessions are revoked.
func (s *Server) handleResetUserPassword(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermUserManage); !ok {
		return
	}

	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeValidationError(w, "password must be at least 8 characters")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.userRepo.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("user lookup failed", "error", err, "user_id", id)
		writeInternalError(w)
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		s.logger.Error("password hashing failed", "error", err)
		writeInternalError(w)
		return
	}
	if err := s.userRepo.UpdatePassword(r.Context(), id, hash); err != nil {
		s.logger.Error("password update failed", "error", err, "user_id", id)
		writeInternalError(w)
		return
	}
	if err := s.tokenRepo.RevokeAllForUser(r.Context(), id); err != nil {
		s.logger.Error("session revocation failed", "error", err, "user_id", id)
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListUserSessions returns a user's active refresh token sessions.
func (s *Server) handleListUserSessions(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorise(w, r, auth.PermUserManage); !ok {
		return
	}

	id := chi.URLParam(r, "id")
	sessions, err := s.tokenRepo.ListActiveByUser(r.Context(), id)
	if err != nil {
		s.logger.Error("session list failed", "error", err, "user_id", id)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleRevokeUserSessions revokes every refresh token a user holds,
// forcing a fresh login on all their devices.
func (s *Server) handleRevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authorise(w, r, auth.PermUserManage)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.tokenRepo.RevokeAllForUser(r.Context(), id); err != nil {
		s.logger.Error("session revocation failed", "error", err, "user_id", id)
		writeInternalError(w)
		return
	}

	s.logger.Info("user sessions revoked", "user_id", id, "revoked_by", claims.Subject)
	writeJSON(w, http.StatusOK, map[string]any{"status": "sessions_revoked"})
}
