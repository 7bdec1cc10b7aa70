package domain

// PolicyPage is one page of a policy listing, together with the paging
// metadata needed to render it without another count query.
type PolicyPage struct {
	Items         []Policy `json:"items"`
	Page          int      `json:"page"`
	Size          int      `json:"size"`
	Sort          string   `json:"sort"`
	TotalElements int64    `json:"total_elements"`
	TotalPages    int      `json:"total_pages"`
}
