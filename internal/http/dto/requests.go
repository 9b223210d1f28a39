package dto

type ChangeStatusRequest struct {
	NewStatus       string `json:"new_status"`
	Reason          string `json:"reason,omitempty"`
	RecoveredAmount int64  `json:"recovered_amount,omitempty"`
	IdempotencyKey  string `json:"idempotency_key,omitempty"`
}

type ContactAttemptRequest struct {
	Method         string `json:"method"`  // phone / email / sms / letter / visit
	Outcome        string `json:"outcome"` // reached / no_answer / wrong_number / refused
	Notes          string `json:"notes,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type RecordPaymentRequest struct {
	Amount         int64  `json:"amount"` // minor units
	Method         string `json:"method"`
	Reference      string `json:"reference,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type BulkStatusRequest struct {
	CaseIDs          []string `json:"case_ids"`
	NewStatus        string   `json:"new_status"`
	Reason           string   `json:"reason,omitempty"`
	FailureThreshold float64  `json:"failure_threshold,omitempty"` // 0 = default 0.5
}

type BulkAllocateRequest struct {
	CaseIDs          []string `json:"case_ids"`
	DCAID            *string  `json:"dca_id,omitempty"` // omit to let the scorer decide
	Method           string   `json:"method,omitempty"`
	FailureThreshold float64  `json:"failure_threshold,omitempty"`
}

type SystemTimelineRequest struct {
	Category    string         `json:"category"` // AI / SLA
	EventType   string         `json:"event_type"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
