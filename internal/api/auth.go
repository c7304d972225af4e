package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openddc/ddc-core/internal/auth"
)

// ticketTTL is how long a WebSocket ticket stays valid. Tickets are
// consumed on first use; the TTL only bounds how long an unused one
// can sit in the store.
const ticketTTL = 60 * time.Second

// ticketBytes is the number of random bytes in a WebSocket ticket.
const ticketBytes = 32

// ticketEntry carries the identity minted into a WebSocket ticket so the
// connection inherits the requesting user's permissions.
type ticketEntry struct {
	userID    string
	role      auth.Role
	expiresAt time.Time
}

// ticketStore holds single-use WebSocket tickets.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]ticketEntry
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

// issue mints a ticket for the given identity.
func (ts *ticketStore) issue(userID string, role auth.Role) (string, error) {
	b := make([]byte, ticketBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	ticket := hex.EncodeToString(b)

	ts.mu.Lock()
	ts.tickets[ticket] = ticketEntry{
		userID:    userID,
		role:      role,
		expiresAt: time.Now().Add(ticketTTL),
	}
	ts.mu.Unlock()

	return ticket, nil
}

// consume validates a ticket and removes it. A ticket is valid exactly once.
func (ts *ticketStore) consume(ticket string) (ticketEntry, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.tickets[ticket]
	if !ok {
		return ticketEntry{}, false
	}
	delete(ts.tickets, ticket)

	if time.Now().After(entry.expiresAt) {
		return ticketEntry{}, false
	}
	return entry, true
}

// cleanExpired removes tickets past their TTL.
func (ts *ticketStore) cleanExpired() {
	now := time.Now()
	ts.mu.Lock()
	for ticket, entry := range ts.tickets {
		if now.After(entry.expiresAt) {
			delete(ts.tickets, ticket)
		}
	}
	ts.mu.Unlock()
}

// cleanTicketsLoop periodically sweeps expired unconsumed tickets.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.wsTickets.cleanExpired()
		}
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int        `json:"expires_in"`
	User         *auth.User `json:"user"`
}

// handleLogin verifies credentials and issues an access/refresh token pair.
// The refresh token starts a new token family for rotation tracking.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	user, err := s.userRepo.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeUnauthorized(w, "invalid credentials")
			return
		}
		s.logger.Error("login user lookup failed", "error", err)
		writeInternalError(w)
		return
	}

	if !user.IsActive {
		writeUnauthorized(w, "account is disabled")
		return
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		s.logger.Error("password verification failed", "error", err, "username", req.Username)
		writeInternalError(w)
		return
	}
	if !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	resp, err := s.issueTokens(r, user, uuid.NewString())
	if err != nil {
		s.logger.Error("token issue failed", "error", err, "username", req.Username)
		writeInternalError(w)
		return
	}

	s.logger.Info("user logged in", "username", user.Username, "role", user.Role)
	writeJSON(w, http.StatusOK, resp)
}

// issueTokens mints an access token and persists a refresh token in the
// given family, returning the pair.
func (s *Server) issueTokens(r *http.Request, user *auth.User, familyID string) (*tokenResponse, error) {
	ttl := s.secCfg.JWT.AccessTokenTTL
	access, err := auth.GenerateAccessToken(user, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		return nil, err
	}

	raw, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	refreshTTL := s.secCfg.JWT.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = 1440 //nolint:mnd // default 24-hour refresh TTL in minutes
	}

	token := &auth.RefreshToken{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		FamilyID:   familyID,
		TokenHash:  auth.HashToken(raw),
		DeviceInfo: r.UserAgent(),
		ExpiresAt:  time.Now().UTC().Add(time.Duration(refreshTTL) * time.Minute),
	}
	if err := s.tokenRepo.Create(r.Context(), token); err != nil {
		return nil, err
	}

	if ttl <= 0 {
		ttl = 15 //nolint:mnd // matches GenerateAccessToken's default
	}
	return &tokenResponse{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    ttl * 60,
		User:         user,
	}, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleRefresh rotates a refresh token. Presenting a token that was
// already rotated is treated as theft: the whole family is revoked.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	stored, err := s.tokenRepo.GetByTokenHash(r.Context(), auth.HashToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, auth.ErrTokenInvalid) {
			writeUnauthorized(w, "invalid refresh token")
			return
		}
		s.logger.Error("refresh token lookup failed", "error", err)
		writeInternalError(w)
		return
	}

	if stored.Revoked {
		// Reuse of a rotated token. Someone is replaying an old token,
		// so every descendant in the family is compromised.
		if err := s.tokenRepo.RevokeFamily(r.Context(), stored.FamilyID); err != nil {
			s.logger.Error("family revocation failed", "error", err, "family_id", stored.FamilyID)
		}
		s.logger.Warn("refresh token reuse detected",
			"user_id", stored.UserID,
			"family_id", stored.FamilyID,
		)
		writeUnauthorized(w, "refresh token reuse detected")
		return
	}

	if time.Now().After(stored.ExpiresAt) {
		writeUnauthorized(w, "refresh token expired")
		return
	}

	user, err := s.userRepo.GetByID(r.Context(), stored.UserID)
	if err != nil {
		writeUnauthorized(w, "invalid refresh token")
		return
	}
	if !user.IsActive {
		if err := s.tokenRepo.RevokeFamily(r.Context(), stored.FamilyID); err != nil {
			s.logger.Error("family revocation failed", "error", err, "family_id", stored.FamilyID)
		}
		writeUnauthorized(w, "account is disabled")
		return
	}

	ttl := s.secCfg.JWT.AccessTokenTTL
	access, err := auth.GenerateAccessToken(user, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		s.logger.Error("access token generation failed", "error", err)
		writeInternalError(w)
		return
	}

	raw, err := auth.GenerateRefreshToken()
	if err != nil {
		s.logger.Error("refresh token generation failed", "error", err)
		writeInternalError(w)
		return
	}

	refreshTTL := s.secCfg.JWT.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = 1440 //nolint:mnd // default 24-hour refresh TTL in minutes
	}
	next := &auth.RefreshToken{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		FamilyID:   stored.FamilyID,
		TokenHash:  auth.HashToken(raw),
		DeviceInfo: stored.DeviceInfo,
		ExpiresAt:  time.Now().UTC().Add(time.Duration(refreshTTL) * time.Minute),
	}
	if err := s.tokenRepo.RotateRefreshToken(r.Context(), stored.ID, next); err != nil {
		s.logger.Error("refresh token rotation failed", "error", err)
		writeInternalError(w)
		return
	}

	if ttl <= 0 {
		ttl = 15 //nolint:mnd // matches GenerateAccessToken's default
	}
	writeJSON(w, http.StatusOK, &tokenResponse{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    ttl * 60,
		User:         user,
	})
}

// handleLogout revokes the presented refresh token's family, ending the
// session on every device that shares it.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	stored, err := s.tokenRepo.GetByTokenHash(r.Context(), auth.HashToken(req.RefreshToken))
	if err != nil {
		// An unknown token is already as logged out as it can get.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := s.tokenRepo.RevokeFamily(r.Context(), stored.FamilyID); err != nil {
		s.logger.Error("logout revocation failed", "error", err)
		writeInternalError(w)
		return
	}

	s.logger.Info("user logged out", "user_id", stored.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the authenticated user and the permission set their
// role grants. Frontends use it to decide which controls to render.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}

	user, err := s.userRepo.GetByID(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeUnauthorized(w, "user no longer exists")
			return
		}
		s.logger.Error("me lookup failed", "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":        user,
		"permissions": auth.PermissionsForRole(claims.Role),
		"session_id":  claims.SessionID,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// minPasswordLength is the minimum accepted password length.
const minPasswordLength = 8

// handleChangeOwnPassword lets the authenticated user change their own
// password. All refresh tokens are revoked afterwards; the caller must
// log in again.
func (s *Server) handleChangeOwnPassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeBadRequest(w, "current_password and new_password are required")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeValidationError(w, "password must be at least 8 characters")
		return
	}

	user, err := s.userRepo.GetByID(r.Context(), claims.Subject)
	if err != nil {
		writeUnauthorized(w, "user no longer exists")
		return
	}

	match, err := auth.VerifyPassword(req.CurrentPassword, user.PasswordHash)
	if err != nil {
		s.logger.Error("password verification failed", "error", err)
		writeInternalError(w)
		return
	}
	if !match {
		writeUnauthorized(w, "current password is incorrect")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		s.logger.Error("password hashing failed", "error", err)
		writeInternalError(w)
		return
	}
	if err := s.userRepo.UpdatePassword(r.Context(), user.ID, hash); err != nil {
		s.logger.Error("password update failed", "error", err)
		writeInternalError(w)
		return
	}
	if err := s.tokenRepo.RevokeAllForUser(r.Context(), user.ID); err != nil {
		s.logger.Error("session revocation failed", "error", err)
	}

	s.logger.Info("password changed", "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}

// handleWSTicket issues a single-use WebSocket ticket carrying the
// caller's identity.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}

	ticket, err := s.wsTickets.issue(claims.Subject, claims.Role)
	if err != nil {
		s.logger.Error("ticket generation failed", "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}
