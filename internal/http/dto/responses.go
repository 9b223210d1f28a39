package dto

type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     ErrorBody `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// CaseDetailResponse embeds the case plus optional enrichment from the
// scoring service.
type CaseDetailResponse struct {
	Case         any      `json:"case"`
	NextStatuses []string `json:"next_statuses"`
	Priority     any      `json:"priority,omitempty"`
}
