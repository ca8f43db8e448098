package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Ham12-3/customer-support-agent-sub000/internal/http/middleware"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/http/response"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/observability"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/repository"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/service"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body", nil)
		return
	}
	result, err := h.auth.Register(req, r.UserAgent(), r.RemoteAddr)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		case errors.Is(err, service.ErrEmailTaken):
			response.Error(w, r, http.StatusConflict, "EMAIL_TAKEN", "email already registered", nil)
		default:
			internalError(w, r, "auth.register", err)
		}
		return
	}
	observability.Audit(r, "auth.register", "user_id", result.User.ID, "tenant_id", result.User.TenantID)
	response.JSON(w, r, http.StatusCreated, result)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body", nil)
		return
	}
	result, err := h.auth.Login(req.Email, req.Password, r.UserAgent(), r.RemoteAddr)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			observability.Audit(r, "auth.login.rejected", "email", req.Email)
			response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials", nil)
		case errors.Is(err, service.ErrAccountDisabled):
			observability.Audit(r, "auth.login.disabled", "email", req.Email)
			response.Error(w, r, http.StatusForbidden, "ACCOUNT_DISABLED", "account is disabled", nil)
		default:
			internalError(w, r, "auth.login", err)
		}
		return
	}
	observability.Audit(r, "auth.login", "user_id", result.User.ID)
	response.JSON(w, r, http.StatusOK, result)
}

// Refresh rotates a refresh credential. The caller must present both
// the raw refresh secret in the body and the (typically expired) access
// token in the Authorization header.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "refreshToken is required", nil)
		return
	}
	accessToken := middleware.BearerToken(r)
	if accessToken == "" {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	result, err := h.auth.Refresh(accessToken, req.RefreshToken, r.UserAgent(), r.RemoteAddr)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRefreshToken), errors.Is(err, service.ErrAccountDisabled):
			observability.Audit(r, "auth.refresh.rejected", "reason", err.Error())
			response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials", nil)
		default:
			internalError(w, r, "auth.refresh", err)
		}
		return
	}
	observability.Audit(r, "auth.refresh", "user_id", result.User.ID)
	response.JSON(w, r, http.StatusOK, result)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "refreshToken is required", nil)
		return
	}
	if err := h.auth.Logout(req.RefreshToken); err != nil {
		internalError(w, r, "auth.logout", err)
		return
	}
	observability.Audit(r, "auth.logout")
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
		return
	}
	user, err := h.auth.CurrentUser(uint(userID))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
			return
		}
		internalError(w, r, "auth.me", err)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}
