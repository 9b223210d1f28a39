package events

import "context"

// Streams
const (
	StreamCase     = "events:case"
	StreamSecurity = "events:security"
)

// Event types
const (
	EventCaseStatusChanged = "case_status_changed"
	EventCaseAllocated     = "case_allocated"
	EventPaymentReceived   = "payment_received"
	EventSecurityIncident  = "security_incident"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
