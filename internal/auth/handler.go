package auth

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Handler exposes HTTP endpoints for the authentication operations.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest carries the opaque refresh secret.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ChangePasswordRequest is the password-change payload.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	pair, err := h.svc.Login(r.Context(), req.Username, req.Password, clientMeta(r))
	if err != nil {
		h.logger.Debugw("login failed", "username", req.Username, "err", err)
		h.writeAuthError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.tokenResponse(pair))
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	pair, err := h.svc.Refresh(r.Context(), req.RefreshToken, clientMeta(r))
	if err != nil {
		h.logger.Debugw("refresh failed", "err", err)
		h.writeAuthError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.tokenResponse(pair))
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if err := h.svc.Logout(r.Context(), req.RefreshToken); err != nil {
		h.logger.Warnw("logout failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "logout failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	accountID, ok := AccountIDFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing token"})
		return
	}
	n, err := h.svc.LogoutAll(r.Context(), accountID)
	if err != nil {
		h.logger.Warnw("logout-all failed", "account_id", accountID, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "logout failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"revoked": n})
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	accountID, ok := AccountIDFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing token"})
		return
	}
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	err := h.svc.ChangePassword(r.Context(), accountID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.logger.Debugw("password change failed", "account_id", accountID, "err", err)
		h.writeAuthError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) tokenResponse(pair *TokenPair) TokenResponse {
	return TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshSecret,
		TokenType:    "Bearer",
		ExpiresIn:    int(h.svc.cfg.AccessTokenTTL.Seconds()),
	}
}

// writeAuthError maps service errors to transport responses. Security-state
// errors say enough to explain the block and nothing more.
func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	var locked *LockedError
	var suspended *SuspendedError
	switch {
	case errors.As(err, &locked):
		h.writeJSON(w, http.StatusForbidden, map[string]any{
			"error":               "account_locked",
			"message":             locked.Error(),
			"retry_after_seconds": int(locked.RetryAfter.Seconds()),
		})
	case errors.As(err, &suspended):
		h.writeJSON(w, http.StatusForbidden, map[string]string{
			"error":   "account_suspended",
			"message": suspended.Error(),
		})
	case errors.Is(err, ErrAccountInactive):
		h.writeJSON(w, http.StatusForbidden, map[string]string{
			"error":   "account_inactive",
			"message": "User account is inactive",
		})
	case errors.Is(err, ErrInvalidCredentials):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_credentials"})
	case errors.Is(err, ErrWeakPassword):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "weak_password"})
	case errors.Is(err, ErrInvalidToken):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
	case errors.Is(err, ErrExpiredToken):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "expired_token"})
	case errors.Is(err, ErrReuseDetected):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":   "reuse_detected",
			"message": "all sessions for this login were revoked for security",
		})
	default:
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func clientMeta(r *http.Request) ClientMeta {
	ip := r.Header.Get("X-Forwarded-For")
	if ip != "" {
		if i := strings.IndexByte(ip, ','); i >= 0 {
			ip = ip[:i]
		}
		ip = strings.TrimSpace(ip)
	} else {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err == nil {
			ip = host
		} else {
			ip = r.RemoteAddr
		}
	}
	return ClientMeta{IP: ip, UserAgent: r.UserAgent()}
}
