// Package httpapi exposes the policy and claim operations over HTTP and
// maps application errors onto transport status codes. Field names and
// routes follow the public API contract, so JSON here is camelCase while
// the event wire format stays snake_case.
package httpapi

import (
	"time"

	"policy-management-service/internal/domain"
)

const dateLayout = "2006-01-02"

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func success(message string, data any) apiResponse {
	return apiResponse{Status: "SUCCESS", Message: message, Data: data}
}

type policyRequest struct {
	CustomerName   string  `json:"customerName"`
	CustomerEmail  string  `json:"customerEmail"`
	PolicyType     string  `json:"policyType"`
	CoverageAmount float64 `json:"coverageAmount"`
	PremiumAmount  float64 `json:"premiumAmount"`
	StartDate      string  `json:"startDate"`
	EndDate        string  `json:"endDate"`
}

type policyResponse struct {
	ID             int64   `json:"id"`
	PolicyNumber   string  `json:"policyNumber"`
	CustomerName   string  `json:"customerName"`
	CustomerEmail  string  `json:"customerEmail"`
	PolicyType     string  `json:"policyType"`
	CoverageAmount float64 `json:"coverageAmount"`
	PremiumAmount  float64 `json:"premiumAmount"`
	StartDate      string  `json:"startDate"`
	EndDate        string  `json:"endDate"`
	Status         string  `json:"status"`
}

func toPolicyResponse(p domain.Policy) policyResponse {
	return policyResponse{
		ID:             p.ID,
		PolicyNumber:   p.PolicyNumber,
		CustomerName:   p.CustomerName,
		CustomerEmail:  p.CustomerEmail,
		PolicyType:     string(p.PolicyType),
		CoverageAmount: p.CoverageAmount,
		PremiumAmount:  p.PremiumAmount,
		StartDate:      p.StartDate.Format(dateLayout),
		EndDate:        p.EndDate.Format(dateLayout),
		Status:         string(p.Status),
	}
}

type pageResponse struct {
	Content    []policyResponse   `json:"content"`
	Pagination paginationMetadata `json:"pagination"`
}

// paginationMetadata reports the 1-based page number the API exposes.
type paginationMetadata struct {
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
	Empty         bool  `json:"empty"`
}

func toPageResponse(page domain.PolicyPage) pageResponse {
	content := make([]policyResponse, 0, len(page.Items))
	for _, p := range page.Items {
		content = append(content, toPolicyResponse(p))
	}
	return pageResponse{
		Content: content,
		Pagination: paginationMetadata{
			Page:          page.Page + 1,
			Size:          page.Size,
			TotalElements: page.TotalElements,
			TotalPages:    page.TotalPages,
			First:         page.Page == 0,
			Last:          page.Page >= page.TotalPages-1,
			Empty:         len(page.Items) == 0,
		},
	}
}

type claimRequest struct {
	PolicyID     int64   `json:"policyId"`
	Description  string  `json:"description"`
	ClaimAmount  float64 `json:"claimAmount"`
	IncidentDate string  `json:"incidentDate"`
}

type updateClaimStatusRequest struct {
	ClaimStatus       string `json:"claimStatus"`
	RejectDescription string `json:"rejectDescription"`
}

type claimResponse struct {
	ID              int64   `json:"id"`
	ClaimNumber     string  `json:"claimNumber"`
	PolicyID        int64   `json:"policyId"`
	Description     string  `json:"description"`
	ClaimAmount     float64 `json:"claimAmount"`
	IncidentDate    string  `json:"incidentDate"`
	Status          string  `json:"status"`
	RejectionReason string  `json:"rejectionReason,omitempty"`
}

func toClaimResponse(c domain.Claim) claimResponse {
	return claimResponse{
		ID:              c.ID,
		ClaimNumber:     c.ClaimNumber,
		PolicyID:        c.PolicyID,
		Description:     c.Description,
		ClaimAmount:     c.ClaimAmount,
		IncidentDate:    c.IncidentDate.Format(dateLayout),
		Status:          string(c.Status),
		RejectionReason: c.RejectionReason,
	}
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse(dateLayout, raw)
}
