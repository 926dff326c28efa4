// Package producer defines the interface for publishing telemetry events to a broker (e.g. Kafka).
package producer

import (
	"context"

	"db-user-sync/internal/telemetry/domain"
)

// Producer publishes telemetry events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; call from a goroutine if needed.
	Emit(ctx context.Context, event *domain.Event) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
