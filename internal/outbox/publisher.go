package outbox

import "github.com/google/uuid"

// Publisher defines the interface for publishing outbox events to
// subscribers. Each engine subsystem that emits events (facility state
// machine, accrual engine, collateral monitor, obligation service) holds
// one of these and calls Publish after its store and ledger writes succeed.
type Publisher interface {
	// Publish sends an event to all subscribers watching the given facility.
	Publish(facilityID uuid.UUID, event Event)
}

// Ensure Hub implements Publisher.
var _ Publisher = (*Hub)(nil)

// Publish implements Publisher by broadcasting the event to the facility.
func (h *Hub) Publish(facilityID uuid.UUID, event Event) {
	h.Broadcast(facilityID, event)
}

// NoOpPublisher discards every event. Used in tests and when the websocket
// fan-out is disabled.
type NoOpPublisher struct{}

// Publish does nothing.
func (NoOpPublisher) Publish(uuid.UUID, Event) {}

var _ Publisher = NoOpPublisher{}
