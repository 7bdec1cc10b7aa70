package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"policy-management-service/internal/domain"
	"policy-management-service/internal/service"
	"policy-management-service/shared/httpx"
	"policy-management-service/shared/logx"
)

type PolicyHandler struct {
	svc    *service.PolicyService
	logger logx.Logger
}

func NewPolicyHandler(svc *service.PolicyService, logger logx.Logger) *PolicyHandler {
	return &PolicyHandler{svc: svc, logger: logger}
}

func (h *PolicyHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /policy/create-new", h.create)
	mux.HandleFunc("GET /policy/all", h.list)
	mux.HandleFunc("GET /policy/{id}", h.getByID)
	mux.HandleFunc("PUT /policy/{id}/renew", h.renew)
	mux.HandleFunc("PUT /policy/{id}/cancel", h.cancel)
}

func (h *PolicyHandler) create(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed request body", nil)
		return
	}
	input, errs := validatePolicyRequest(req)
	if errs != nil {
		writeValidationError(w, r, errs)
		return
	}

	p, err := h.svc.Create(r.Context(), domain.NewPolicy(
		req.CustomerName, req.CustomerEmail, input.policyType,
		req.CoverageAmount, req.PremiumAmount, input.startDate, input.endDate,
	))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, success("Policy created successfully", toPolicyResponse(p)))
}

func (h *PolicyHandler) getByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, success("Policy retrieved successfully", toPolicyResponse(p)))
}

// list serves GET /policy/all with 1-based page numbering.
func (h *PolicyHandler) list(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	size := queryInt(r, "pageSize", 10)
	sort := r.URL.Query().Get("sort")
	if sort == "" {
		sort = "id"
	}

	result, err := h.svc.List(r.Context(), page-1, size, sort)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, success("Policies retrieved successfully", toPageResponse(result)))
}

func (h *PolicyHandler) renew(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.svc.Renew(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, success("Policy renewed successfully!", toPolicyResponse(p)))
}

func (h *PolicyHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.svc.Cancel(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, success("Policy cancelled successfully!", toPolicyResponse(p)))
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", name+" must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
