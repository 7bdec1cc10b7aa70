package httpapi

import (
	"regexp"
	"strings"
	"time"

	"policy-management-service/internal/domain"
)

const (
	maxNameLength        = 100
	minNameParts         = 2
	maxDescriptionLength = 500
	minTermMonths        = 6
)

// fullNamePattern allows unicode letters plus hyphen and apostrophe inside
// each name part.
var fullNamePattern = regexp.MustCompile(`^\p{L}+[\p{L}'-]*( \p{L}+[\p{L}'-]*)*$`)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,6}$`)

var spacesPattern = regexp.MustCompile(`\s+`)

type fieldErrors map[string][]string

func (f fieldErrors) add(field string, message string) {
	f[field] = append(f[field], message)
}

func validFullName(raw string) bool {
	v := strings.TrimSpace(raw)
	if v == "" || len(v) > maxNameLength {
		return false
	}
	v = spacesPattern.ReplaceAllString(v, " ")
	if !fullNamePattern.MatchString(v) {
		return false
	}
	return len(strings.Split(v, " ")) >= minNameParts
}

func validEmail(raw string) bool {
	return emailPattern.MatchString(strings.TrimSpace(raw))
}

type policyInput struct {
	policyType domain.PolicyType
	startDate  time.Time
	endDate    time.Time
}

// validatePolicyRequest collects every broken field instead of failing
// fast, mirroring the API's validation error contract.
func validatePolicyRequest(req policyRequest) (policyInput, fieldErrors) {
	errs := fieldErrors{}
	var input policyInput

	if strings.TrimSpace(req.CustomerName) == "" {
		errs.add("customerName", "Customer name should not be empty")
	} else if !validFullName(req.CustomerName) {
		errs.add("customerName", "Must be first and last name")
	}

	if strings.TrimSpace(req.CustomerEmail) == "" {
		errs.add("customerEmail", "Customer email should not be empty")
	} else if !validEmail(req.CustomerEmail) {
		errs.add("customerEmail", "Invalid email format")
	}

	if strings.TrimSpace(req.PolicyType) == "" {
		errs.add("policyType", "Policy type should not be empty")
	} else if pt, err := domain.ParsePolicyType(req.PolicyType); err != nil {
		errs.add("policyType", err.Error())
	} else {
		input.policyType = pt
	}

	if req.CoverageAmount <= 0 {
		errs.add("coverageAmount", "Coverage Amount should be a positive value")
	}
	if req.PremiumAmount <= 0 {
		errs.add("premiumAmount", "Premium Amount should be a positive value")
	}
	if req.CoverageAmount > 0 && req.PremiumAmount > 0 && req.CoverageAmount <= req.PremiumAmount {
		errs.add("coverageAmount", "Coverage Amount must be greater than Premium Amount")
	}

	startOK, endOK := false, false
	if strings.TrimSpace(req.StartDate) == "" {
		errs.add("startDate", "Start Date should not be empty")
	} else if d, err := parseDate(req.StartDate); err != nil {
		errs.add("startDate", "Start Date must be a date in YYYY-MM-DD format")
	} else {
		input.startDate = d
		startOK = true
	}
	if strings.TrimSpace(req.EndDate) == "" {
		errs.add("endDate", "End Date should not be empty")
	} else if d, err := parseDate(req.EndDate); err != nil {
		errs.add("endDate", "End Date must be a date in YYYY-MM-DD format")
	} else {
		input.endDate = d
		endOK = true
	}
	if startOK && endOK {
		minEnd := input.startDate.AddDate(0, minTermMonths, 0)
		if !input.endDate.After(input.startDate) || input.endDate.Before(minEnd) {
			errs.add("endDate", "endDate must be at least 6 months after startDate")
		}
	}

	if len(errs) > 0 {
		return policyInput{}, errs
	}
	return input, nil
}

type claimInput struct {
	incidentDate time.Time
}

func validateClaimRequest(req claimRequest, now time.Time) (claimInput, fieldErrors) {
	errs := fieldErrors{}
	var input claimInput

	if req.PolicyID <= 0 {
		errs.add("policyId", "Policy Id should be present")
	}
	if strings.TrimSpace(req.Description) == "" {
		errs.add("description", "Description should not be empty")
	} else if len(req.Description) > maxDescriptionLength {
		errs.add("description", "Description must not exceed 500 characters")
	}
	if req.ClaimAmount <= 0 {
		errs.add("claimAmount", "Claim amount should be positive number")
	}

	if strings.TrimSpace(req.IncidentDate) == "" {
		errs.add("incidentDate", "Incident Date cannot be empty!")
	} else if d, err := parseDate(req.IncidentDate); err != nil {
		errs.add("incidentDate", "Incident Date must be a date in YYYY-MM-DD format")
	} else if d.After(now) {
		errs.add("incidentDate", "Incident Date should not be in the future")
	} else {
		input.incidentDate = d
	}

	if len(errs) > 0 {
		return claimInput{}, errs
	}
	return input, nil
}
