// Package domain holds the event shape shared by every telemetry sink.
package domain

import (
	"encoding/json"
	"time"
)

// Event types emitted by the synchronization engine and the admin surface.
const (
	EventSyncStarted   = "sync_started"
	EventSyncFinished  = "sync_finished"
	EventSyncFailed    = "sync_failed"
	EventSyncRowFailed = "sync_row_failed"
	EventGRPCRequest   = "grpc_request"
)

// Event is one telemetry event. It is serialized as JSON for Kafka and mapped to an OTel log record.
type Event struct {
	RealmID    string          `json:"realm_id,omitempty"`
	ProviderID string          `json:"provider_id,omitempty"`
	ImportID   string          `json:"import_id,omitempty"`
	UserID     string          `json:"user_id,omitempty"`
	Username   string          `json:"username,omitempty"`
	EventType  string          `json:"event_type"`
	Source     string          `json:"source"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// WithMetadata marshals v into e.Metadata. A marshal failure leaves Metadata empty.
func (e *Event) WithMetadata(v any) *Event {
	if b, err := json.Marshal(v); err == nil {
		e.Metadata = b
	}
	return e
}
