package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creditcore/creditd/internal/domain"
)

// EventRepository is the append-only per-facility event log the
// repayment-plan projector folds over. Sequence is assigned by the
// database (a per-facility identity column) so it is monotonic and gapless
// under concurrent appenders.
type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) Append(ctx context.Context, facilityID uuid.UUID, eventType domain.DomainEventType, payload interface{}) (domain.DomainEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.DomainEvent{}, err
	}

	var sequence int64
	var recordedAt time.Time
	err = r.pool.QueryRow(ctx, `
		INSERT INTO facility_events (facility_id, event_type, payload, recorded_at)
		VALUES ($1, $2, $3, now())
		RETURNING sequence, recorded_at`,
		facilityID, eventType, data).Scan(&sequence, &recordedAt)
	if err != nil {
		return domain.DomainEvent{}, err
	}

	return domain.DomainEvent{
		Sequence:   sequence,
		FacilityID: facilityID,
		Type:       eventType,
		Payload:    payload,
		RecordedAt: recordedAt,
	}, nil
}

func (r *EventRepository) ListSince(ctx context.Context, facilityID uuid.UUID, afterSequence int64) ([]domain.DomainEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT sequence, event_type, payload, recorded_at
		  FROM facility_events
		 WHERE facility_id = $1 AND sequence > $2
		 ORDER BY sequence ASC`, facilityID, afterSequence)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.DomainEvent
	for rows.Next() {
		var (
			evt     domain.DomainEvent
			rawType string
			raw     []byte
		)
		evt.FacilityID = facilityID
		if err := rows.Scan(&evt.Sequence, &rawType, &raw, &evt.RecordedAt); err != nil {
			return nil, err
		}
		evt.Type = domain.DomainEventType(rawType)
		evt.Payload, err = decodeEventPayload(evt.Type, raw)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// decodeEventPayload unmarshals the stored JSON back into the concrete
// payload type Fold expects for evt.Type, since the event log stores
// payloads as opaque JSON rather than as Go values.
func decodeEventPayload(eventType domain.DomainEventType, raw []byte) (interface{}, error) {
	var payload interface{}
	switch eventType {
	case domain.EventProposalCreated:
		var p domain.ProposalCreatedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		payload = p
	case domain.EventFacilityActivatedEvt:
		var p domain.FacilityActivatedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		payload = p
	case domain.EventObligationCreatedEvt:
		var p domain.ObligationCreatedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		payload = p
	case domain.EventPaymentAllocatedEvt:
		var p domain.PaymentAllocatedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		payload = p
	case domain.EventObligationStatusEvt:
		var p domain.ObligationStatusChangedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		payload = p
	case domain.EventAccrualPostedEvt:
		var p domain.AccrualPostedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		payload = p
	}
	return payload, nil
}
