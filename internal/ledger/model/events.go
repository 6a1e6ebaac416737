package model

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names one variant of the closed Event set.
type EventKind string

const (
	EventBatchCreated     EventKind = "batch.created"
	EventBatchListed      EventKind = "batch.listed"
	EventQualityUpdated   EventKind = "batch.quality_updated"
	EventMetadataUpdated  EventKind = "batch.metadata_updated"
	EventProvenanceAdded  EventKind = "batch.provenance_added"
	EventEscrowFunded     EventKind = "batch.escrow_funded"
	EventDelivered        EventKind = "batch.delivered"
	EventReleased         EventKind = "batch.released"
	EventIncentiveAwarded EventKind = "incentive.awarded"
	EventRefunded         EventKind = "batch.refunded"
)

// EventPayload is implemented only by the payload types in this file, so a
// type switch over it is exhaustive.
type EventPayload interface {
	Kind() EventKind
	isEventPayload()
}

// Event is emitted once per successful mutating operation.
type Event struct {
	ID      uuid.UUID    `json:"id"`
	Kind    EventKind    `json:"kind"`
	BatchID uint64       `json:"batch_id"`
	Actor   Principal    `json:"actor"`
	At      time.Time    `json:"at"`
	Data    EventPayload `json:"data"`
}

// NewEvent stamps a payload with an id, batch, actor and time.
func NewEvent(batchID uint64, actor Principal, at time.Time, data EventPayload) Event {
	return Event{
		ID:      uuid.New(),
		Kind:    data.Kind(),
		BatchID: batchID,
		Actor:   actor,
		At:      at.UTC(),
		Data:    data,
	}
}

type BatchCreated struct {
	Farmer      Principal `json:"farmer"`
	MetadataCID string    `json:"metadata_cid"`
	PriceWei    Amount    `json:"price_wei"`
}

type BatchListed struct {
	PriceWei Amount `json:"price_wei"`
}

type QualityUpdated struct {
	QualityScore uint8 `json:"quality_score"`
	DataVerified bool  `json:"data_verified"`
}

type MetadataUpdated struct {
	MetadataCID string `json:"metadata_cid"`
}

type ProvenanceAdded struct {
	CID    string    `json:"cid"`
	Author Principal `json:"author"`
	Index  int       `json:"index"`
}

type EscrowFunded struct {
	Buyer  Principal `json:"buyer"`
	Amount Amount    `json:"amount_wei"`
}

type Delivered struct{}

type Released struct {
	Farmer Principal `json:"farmer"`
	Amount Amount    `json:"amount_wei"`
}

type IncentiveAwarded struct {
	Farmer  Principal `json:"farmer"`
	Points  uint64    `json:"points"`
	Balance uint64    `json:"balance"`
}

type Refunded struct {
	Buyer  Principal `json:"buyer"`
	Amount Amount    `json:"amount_wei"`
}

func (BatchCreated) Kind() EventKind     { return EventBatchCreated }
func (BatchListed) Kind() EventKind      { return EventBatchListed }
func (QualityUpdated) Kind() EventKind   { return EventQualityUpdated }
func (MetadataUpdated) Kind() EventKind  { return EventMetadataUpdated }
func (ProvenanceAdded) Kind() EventKind  { return EventProvenanceAdded }
func (EscrowFunded) Kind() EventKind     { return EventEscrowFunded }
func (Delivered) Kind() EventKind        { return EventDelivered }
func (Released) Kind() EventKind         { return EventReleased }
func (IncentiveAwarded) Kind() EventKind { return EventIncentiveAwarded }
func (Refunded) Kind() EventKind         { return EventRefunded }

func (BatchCreated) isEventPayload()     {}
func (BatchListed) isEventPayload()      {}
func (QualityUpdated) isEventPayload()   {}
func (MetadataUpdated) isEventPayload()  {}
func (ProvenanceAdded) isEventPayload()  {}
func (EscrowFunded) isEventPayload()     {}
func (Delivered) isEventPayload()        {}
func (Released) isEventPayload()         {}
func (IncentiveAwarded) isEventPayload() {}
func (Refunded) isEventPayload()         {}
