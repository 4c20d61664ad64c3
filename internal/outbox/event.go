package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType names one of the produced outbox events from spec §6.
type EventType string

const (
	EventFacilityProposalCreated                 EventType = "facility_proposal.created"
	EventFacilityProposalConcluded                EventType = "facility_proposal.concluded"
	EventPendingFacilityCollateralizationChanged EventType = "pending_credit_facility.collateralization_changed"
	EventPendingFacilityCompleted                 EventType = "pending_credit_facility.completed"
	EventFacilityActivated                        EventType = "facility.activated"
	EventFacilityCollateralizationChanged         EventType = "facility.collateralization_changed"
	EventFacilityCompleted                        EventType = "facility.completed"
	EventAccrualPosted                            EventType = "accrual.posted"
	EventObligationCreated                        EventType = "obligation.created"
	EventObligationDue                            EventType = "obligation.due"
	EventObligationOverdue                        EventType = "obligation.overdue"
	EventObligationDefaulted                      EventType = "obligation.defaulted"
	EventObligationCompleted                      EventType = "obligation.completed"
	EventPaymentAllocated                         EventType = "payment.allocated"
)

// Event is the envelope every outbox event is wrapped in before it is
// fanned out to subscribers. This package does not persist events, and
// nothing in the repository assigns Sequence, so it is sent as zero. The
// repayment-plan projector tracks its last-applied position with the
// domain.DomainEvent sequence from the EventRepository, not with this field.
type Event struct {
	Sequence   int64       `json:"sequence"`
	FacilityID uuid.UUID   `json:"facilityId"`
	Type       EventType   `json:"type"`
	Payload    interface{} `json:"payload"`
	RecordedAt time.Time   `json:"recordedAt"`
}

// NewEvent builds an envelope with Sequence left zero.
func NewEvent(facilityID uuid.UUID, eventType EventType, payload interface{}) Event {
	return Event{
		FacilityID: facilityID,
		Type:       eventType,
		Payload:    payload,
		RecordedAt: time.Now().UTC(),
	}
}

// ToJSON serializes the event for websocket fan-out.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FacilityProposalCreatedPayload is the payload for EventFacilityProposalCreated.
type FacilityProposalCreatedPayload struct {
	ProposalID  uuid.UUID `json:"proposalId"`
	CustomerID  string    `json:"customerId"`
	AmountCents int64     `json:"amountCents"`
	CreatedAt   time.Time `json:"createdAt"`
}

// FacilityProposalConcludedPayload is the payload for EventFacilityProposalConcluded.
type FacilityProposalConcludedPayload struct {
	ProposalID uuid.UUID `json:"proposalId"`
	Status     string    `json:"status"`
}

// CollateralizationChangedPayload is shared by the pending and active
// facility collateralization-changed events (§6).
type CollateralizationChangedPayload struct {
	State                string    `json:"state"`
	CollateralBTC        string    `json:"collateral"`
	DisbursedOutstanding string    `json:"disbursedOutstanding,omitempty"`
	InterestOutstanding  string    `json:"interestOutstanding,omitempty"`
	PriceUSD             string    `json:"price"`
	RecordedAt           time.Time `json:"recordedAt"`
	Effective            time.Time `json:"effective"`
}

// FacilityActivatedPayload is the payload for EventFacilityActivated.
type FacilityActivatedPayload struct {
	ActivationTxID uuid.UUID `json:"activationTxId"`
	ActivatedAt    time.Time `json:"activatedAt"`
	AmountCents    int64     `json:"amountCents"`
}

// AccrualPostedPayload is the payload for EventAccrualPosted.
type AccrualPostedPayload struct {
	LedgerTxID  uuid.UUID `json:"ledgerTxId"`
	AmountCents int64     `json:"amountCents"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
	DueAt       time.Time `json:"dueAt"`
	RecordedAt  time.Time `json:"recordedAt"`
	Effective   time.Time `json:"effective"`
}

// FacilityCompletedPayload is the payload for EventFacilityCompleted.
type FacilityCompletedPayload struct {
	FacilityID           uuid.UUID `json:"facilityId"`
	CollateralReturnedBTC string   `json:"collateralReturned,omitempty"`
	CompletedAt          time.Time `json:"completedAt"`
}

// ObligationPayload is the payload shared by the obligation lifecycle events.
type ObligationPayload struct {
	ObligationID     uuid.UUID `json:"obligationId"`
	Status           string    `json:"status"`
	OutstandingCents int64     `json:"outstandingCents"`
}

// PaymentAllocatedPayload is the payload for EventPaymentAllocated.
type PaymentAllocatedPayload struct {
	AllocationID uuid.UUID `json:"allocationId"`
	PaymentID    uuid.UUID `json:"paymentId"`
	ObligationID uuid.UUID `json:"obligationId"`
	AmountCents  int64     `json:"amountCents"`
}
