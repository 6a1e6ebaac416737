package model

// CreateBatchRequest is the payload for creating a new batch.
type CreateBatchRequest struct {
	MetadataCID string `json:"metadata_cid" binding:"required"`
	PriceWei    Amount `json:"price_wei"`
}

// ListBatchRequest lists a batch (or re-prices a listed one).
type ListBatchRequest struct {
	PriceWei Amount `json:"price_wei"`
}

// UpdateQualityRequest carries a quality score from the external verifier.
// Score is a plain int so out-of-range input reaches the engine and is
// rejected there with ErrInvalidRange.
type UpdateQualityRequest struct {
	Score    *int `json:"score" binding:"required"`
	Verified bool `json:"verified"`
}

// UpdateMetadataRequest replaces a batch's metadata CID.
type UpdateMetadataRequest struct {
	MetadataCID string `json:"metadata_cid" binding:"required"`
}

// AddProvenanceRequest appends a provenance note.
type AddProvenanceRequest struct {
	CID string `json:"cid" binding:"required"`
}

// FundEscrowRequest is the buyer's escrow deposit.
type FundEscrowRequest struct {
	AmountWei Amount `json:"amount_wei"`
}
