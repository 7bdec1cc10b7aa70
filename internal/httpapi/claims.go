package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"policy-management-service/internal/domain"
	"policy-management-service/internal/service"
	"policy-management-service/shared/httpx"
	"policy-management-service/shared/logx"
)

type ClaimHandler struct {
	svc    *service.ClaimService
	logger logx.Logger
}

func NewClaimHandler(svc *service.ClaimService, logger logx.Logger) *ClaimHandler {
	return &ClaimHandler{svc: svc, logger: logger}
}

func (h *ClaimHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /claim/create-new", h.create)
	mux.HandleFunc("GET /claim/policy/{policyId}", h.listByPolicy)
	mux.HandleFunc("GET /claim/{id}", h.getByID)
	mux.HandleFunc("PATCH /claim/{id}/update-status", h.updateStatus)
}

func (h *ClaimHandler) create(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed request body", nil)
		return
	}
	input, errs := validateClaimRequest(req, time.Now().UTC())
	if errs != nil {
		writeValidationError(w, r, errs)
		return
	}

	c, err := h.svc.Create(r.Context(), req.PolicyID, req.Description, req.ClaimAmount, input.incidentDate)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, success("Claim created successfully", toClaimResponse(c)))
}

func (h *ClaimHandler) getByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, success("Claim found successfully", toClaimResponse(c)))
}

func (h *ClaimHandler) listByPolicy(w http.ResponseWriter, r *http.Request) {
	policyID, ok := pathID(w, r, "policyId")
	if !ok {
		return
	}
	claims, err := h.svc.GetByPolicyID(r.Context(), policyID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	out := make([]claimResponse, 0, len(claims))
	for _, c := range claims {
		out = append(out, toClaimResponse(c))
	}
	httpx.WriteJSON(w, http.StatusOK, success("Claims found successfully", out))
}

func (h *ClaimHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateClaimStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed request body", nil)
		return
	}
	if strings.TrimSpace(req.ClaimStatus) == "" {
		writeValidationError(w, r, fieldErrors{"claimStatus": {"Claim status should not be empty"}})
		return
	}
	status, err := domain.ParseClaimStatus(req.ClaimStatus)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	c, err := h.svc.UpdateStatus(r.Context(), id, status, req.RejectDescription)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, success("Claim status updated successfully", toClaimResponse(c)))
}
