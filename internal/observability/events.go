package observability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventEnvelope wraps every payload published to the broker.
type EventEnvelope struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	EventName  string `json:"event_name"`
	OccurredAt string `json:"occurred_at"`
	RequestID  string `json:"request_id,omitempty"`
	Payload    any    `json:"payload"`
}

// NewEnvelope stamps payload with an id, the current time and the request id
// carried by ctx.
func NewEnvelope(ctx context.Context, eventType, eventName string, payload any) EventEnvelope {
	return EventEnvelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		EventName:  eventName,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		RequestID:  RequestIDFromContext(ctx),
		Payload:    payload,
	}
}
