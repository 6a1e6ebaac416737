package webhooks

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
)

// SignatureHeader carries "sha256=<hex HMAC>" of the request body.
const SignatureHeader = "X-Escrow-Signature"

// DeliveryHeader carries the delivery id, stable across retries so
// receivers can drop duplicates.
const DeliveryHeader = "X-Escrow-Delivery"

// Envelope is the JSON body POSTed to each endpoint.
type Envelope struct {
	ID        uuid.UUID   `json:"id"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Event     model.Event `json:"event"`
}

// Delivery is the outcome of one delivery attempt.
type Delivery struct {
	EventID    uuid.UUID `json:"event_id"`
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code"`
	Attempt    int       `json:"attempt"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}
