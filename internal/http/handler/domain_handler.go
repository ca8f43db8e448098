package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Ham12-3/customer-support-agent-sub000/internal/http/middleware"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/http/response"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/observability"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/repository"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/service"
)

type DomainHandler struct {
	domains *service.DomainService
}

func NewDomainHandler(domains *service.DomainService) *DomainHandler {
	return &DomainHandler{domains: domains}
}

type createDomainRequest struct {
	Hostname string `json:"hostname"`
}

type domainResponse struct {
	Claim       any `json:"domain"`
	Instruction any `json:"verification,omitempty"`
}

func (h *DomainHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromContext(w, r)
	if !ok {
		return
	}
	var req createDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body", nil)
		return
	}
	claim, instruction, err := h.domains.RegisterDomain(tenantID, req.Hostname)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidHostname):
			response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		case errors.Is(err, repository.ErrHostnameTaken):
			response.Error(w, r, http.StatusConflict, "HOSTNAME_TAKEN", "hostname already claimed", nil)
		default:
			internalError(w, r, "domains.create", err)
		}
		return
	}
	observability.Audit(r, "domains.create", "tenant_id", tenantID, "hostname", claim.Hostname)
	response.JSON(w, r, http.StatusCreated, domainResponse{Claim: claim, Instruction: instruction})
}

func (h *DomainHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromContext(w, r)
	if !ok {
		return
	}
	claims, err := h.domains.ListDomains(tenantID)
	if err != nil {
		internalError(w, r, "domains.list", err)
		return
	}
	response.JSON(w, r, http.StatusOK, claims)
}

func (h *DomainHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromContext(w, r)
	if !ok {
		return
	}
	claimID, ok := claimIDParam(w, r)
	if !ok {
		return
	}
	claim, err := h.domains.GetDomain(tenantID, claimID)
	if err != nil {
		if errors.Is(err, repository.ErrClaimNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "domain not found", nil)
			return
		}
		internalError(w, r, "domains.get", err)
		return
	}
	out := domainResponse{Claim: claim}
	if !claim.Usable() {
		out.Instruction = h.domains.Instruction(claim)
	}
	response.JSON(w, r, http.StatusOK, out)
}

// APIKey releases the widget key for a verified claim only.
func (h *DomainHandler) APIKey(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromContext(w, r)
	if !ok {
		return
	}
	claimID, ok := claimIDParam(w, r)
	if !ok {
		return
	}
	key, err := h.domains.APIKey(tenantID, claimID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrClaimNotFound):
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "domain not found", nil)
		case errors.Is(err, service.ErrDomainNotVerified):
			response.Error(w, r, http.StatusConflict, "DOMAIN_NOT_VERIFIED", "domain is not verified yet", nil)
		default:
			internalError(w, r, "domains.api_key", err)
		}
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"apiKey": key})
}

func (h *DomainHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromContext(w, r)
	if !ok {
		return
	}
	claimID, ok := claimIDParam(w, r)
	if !ok {
		return
	}
	if err := h.domains.DeleteDomain(tenantID, claimID); err != nil {
		if errors.Is(err, repository.ErrClaimNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "domain not found", nil)
			return
		}
		internalError(w, r, "domains.delete", err)
		return
	}
	observability.Audit(r, "domains.delete", "tenant_id", tenantID, "domain_id", claimID)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

func tenantFromContext(w http.ResponseWriter, r *http.Request) (uint, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || claims.TenantID == 0 {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return 0, false
	}
	return claims.TenantID, true
}

func claimIDParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "domain_id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid domain id", nil)
		return 0, false
	}
	return uint(id), true
}

// internalError hides the failure detail from the caller; the wrapped
// error goes to the log only.
func internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	slog.ErrorContext(r.Context(), "internal error", "op", op, "error", err)
	response.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "something went wrong, try again later", nil)
}
