package services

// Error codes returned in action and bulk results.
const (
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeRegionAccessDenied  = "REGION_ACCESS_DENIED"
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternalError       = "INTERNAL_ERROR"
)

// AppError is a machine-readable failure carried in results. Recoverable
// conditions (rule violations, lock conflicts) travel this way, never as Go
// errors.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ActionResult is the outcome of a single case mutation.
type ActionResult struct {
	Success    bool      `json:"success"`
	Data       any       `json:"data,omitempty"`
	Error      *AppError `json:"error,omitempty"`
	Idempotent bool      `json:"idempotent,omitempty"`
}

func failure(code, message string, details map[string]any) ActionResult {
	return ActionResult{Error: &AppError{Code: code, Message: message, Details: details}}
}

// BulkItemResult is the per-case outcome inside a bulk operation.
type BulkItemResult struct {
	CaseID  string    `json:"case_id"`
	Success bool      `json:"success"`
	Error   *AppError `json:"error,omitempty"`
}

// BulkResult reports a whole batch. Success is true only when zero cases
// failed. RollbackPerformed marks batches whose applied writes were
// compensated after a threshold breach.
type BulkResult struct {
	Success           bool             `json:"success"`
	TotalProcessed    int              `json:"total_processed"`
	SuccessCount      int              `json:"success_count"`
	FailureCount      int              `json:"failure_count"`
	Results           []BulkItemResult `json:"results"`
	RollbackPerformed bool             `json:"rollback_performed,omitempty"`
}
