package model

import (
	"fmt"
	"strings"
	"time"
)

// State is the lifecycle state of a produce batch.
type State string

const (
	StateCreated      State = "created"
	StateListed       State = "listed"
	StateEscrowFunded State = "escrow_funded"
	StateDelivered    State = "delivered"
	StateReleased     State = "released"
	StateRefunded     State = "refunded"
)

// transitions is the complete edge set of the lifecycle graph.
// Listed → Listed is a re-list (price change) and is the only self-edge.
var transitions = map[State][]State{
	StateCreated:      {StateListed},
	StateListed:       {StateListed, StateEscrowFunded},
	StateEscrowFunded: {StateDelivered, StateRefunded},
	StateDelivered:    {StateReleased},
}

// CanTransition reports whether from → to is an edge of the lifecycle graph.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s State) Terminal() bool {
	return s == StateReleased || s == StateRefunded
}

// HoldsFunds reports whether escrow is held in s: from funding until the
// paired release or refund.
func (s State) HoldsFunds() bool {
	return s == StateEscrowFunded || s == StateDelivered
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateCreated, StateListed, StateEscrowFunded, StateDelivered, StateReleased, StateRefunded:
		return true
	}
	return false
}

// MaxCIDLength bounds stored content identifiers.
const MaxCIDLength = 512

// MaxQualityScore is the inclusive upper bound for Batch.QualityScore.
const MaxQualityScore = 100

// ProvenanceEntry is one note in a batch's supply-chain history.
type ProvenanceEntry struct {
	CID     string    `json:"cid"`
	Author  Principal `json:"author"`
	AddedAt time.Time `json:"added_at"`
}

// Batch is a tradable unit of produce and its escrow state.
type Batch struct {
	ID              uint64            `json:"id"`
	Farmer          Principal         `json:"farmer"`
	MetadataCID     string            `json:"metadata_cid"`
	QualityScore    uint8             `json:"quality_score"`
	DataVerified    bool              `json:"data_verified"`
	PriceWei        Amount            `json:"price_wei"`
	Buyer           *Principal        `json:"buyer,omitempty"`
	EscrowAmountWei Amount            `json:"escrow_amount_wei"`
	State           State             `json:"state"`
	CreatedAt       time.Time         `json:"created_at"`
	Provenance      []ProvenanceEntry `json:"provenance"`
}

// Clone returns a deep copy so callers never share mutable state with the store.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	out := *b
	if b.Buyer != nil {
		buyer := *b.Buyer
		out.Buyer = &buyer
	}
	out.Provenance = make([]ProvenanceEntry, len(b.Provenance))
	copy(out.Provenance, b.Provenance)
	return &out
}

// ProvenanceCIDs returns the provenance CIDs in append order.
func (b *Batch) ProvenanceCIDs() []string {
	out := make([]string, len(b.Provenance))
	for i, p := range b.Provenance {
		out[i] = p.CID
	}
	return out
}

// IsFarmer reports whether p created the batch.
func (b *Batch) IsFarmer(p Principal) bool { return !p.IsZero() && b.Farmer == p }

// IsBuyer reports whether p funded the batch's escrow.
func (b *Batch) IsBuyer(p Principal) bool {
	return b.Buyer != nil && !p.IsZero() && *b.Buyer == p
}

// CheckEscrowInvariant verifies that escrow is non-zero exactly while the
// batch holds funds.
func (b *Batch) CheckEscrowInvariant() error {
	if b.State.HoldsFunds() == b.EscrowAmountWei.IsZero() {
		return fmt.Errorf("batch %d: escrow %s inconsistent with state %s", b.ID, b.EscrowAmountWei, b.State)
	}
	return nil
}

// ValidateCID checks that a content identifier is present. The ledger treats
// CIDs as opaque strings and never decodes them.
func ValidateCID(s string) error {
	if strings.TrimSpace(s) == "" {
		return &ErrValidation{Msg: "cid is required"}
	}
	if len(s) > MaxCIDLength {
		return &ErrValidation{Msg: fmt.Sprintf("cid exceeds %d bytes", MaxCIDLength)}
	}
	return nil
}
