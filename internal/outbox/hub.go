package outbox

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrClientClosed is returned when attempting to send to a closed subscriber.
var ErrClientClosed = errors.New("subscriber is closed")

// Subscriber defines the interface a websocket connection implements to
// receive fan-out of one facility's outbox events.
type Subscriber interface {
	ID() string
	FacilityID() uuid.UUID
	Send(data []byte) error
	Close() error
}

// Hub fans out outbox events to websocket subscribers grouped by the
// facility they are watching. Safe for concurrent use. Cross-facility
// ordering is not guaranteed (spec §6); within one facility, each
// subscriber receives events in the order Broadcast was called for them.
type Hub struct {
	facilities map[uuid.UUID]map[string]Subscriber
	mu         sync.RWMutex
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		facilities: make(map[uuid.UUID]map[string]Subscriber),
	}
}

// Register adds a subscriber to the hub under the facility it watches.
func (h *Hub) Register(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	facilityID := sub.FacilityID()
	if h.facilities[facilityID] == nil {
		h.facilities[facilityID] = make(map[string]Subscriber)
	}
	h.facilities[facilityID][sub.ID()] = sub

	log.Debug().
		Str("facility_id", facilityID.String()).
		Str("subscriber_id", sub.ID()).
		Msg("outbox subscriber registered")
}

// Unregister removes a subscriber from the hub.
func (h *Hub) Unregister(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	facilityID := sub.FacilityID()
	if subs, ok := h.facilities[facilityID]; ok {
		if _, exists := subs[sub.ID()]; exists {
			delete(subs, sub.ID())
			if len(subs) == 0 {
				delete(h.facilities, facilityID)
			}
			log.Debug().
				Str("facility_id", facilityID.String()).
				Str("subscriber_id", sub.ID()).
				Msg("outbox subscriber unregistered")
		}
	}
}

// Broadcast sends an event to all subscribers watching the given facility.
func (h *Hub) Broadcast(facilityID uuid.UUID, event Event) {
	data, err := event.ToJSON()
	if err != nil {
		log.Error().
			Err(err).
			Str("facility_id", facilityID.String()).
			Str("event_type", string(event.Type)).
			Msg("failed to serialize outbox event")
		return
	}

	h.mu.RLock()
	subs, ok := h.facilities[facilityID]
	if !ok || len(subs) == 0 {
		h.mu.RUnlock()
		return
	}
	subsCopy := make([]Subscriber, 0, len(subs))
	for _, sub := range subs {
		subsCopy = append(subsCopy, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subsCopy {
		if err := sub.Send(data); err != nil {
			log.Warn().
				Err(err).
				Str("facility_id", facilityID.String()).
				Str("subscriber_id", sub.ID()).
				Msg("failed to send outbox event to subscriber")
		}
	}

	log.Debug().
		Str("facility_id", facilityID.String()).
		Str("event_type", string(event.Type)).
		Int("subscriber_count", len(subsCopy)).
		Msg("broadcast outbox event")
}

// SubscriberCount returns the number of subscribers watching a facility.
func (h *Hub) SubscriberCount(facilityID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.facilities[facilityID])
}

// TotalSubscriberCount returns the total number of connected subscribers
// across all facilities.
func (h *Hub) TotalSubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, subs := range h.facilities {
		total += len(subs)
	}
	return total
}
