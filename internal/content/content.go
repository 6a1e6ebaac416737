// Package content is a content-addressed blob store for batch metadata and
// provenance documents. Blobs are addressed by CIDv1 (raw codec, sha2-256).
package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// MaxBlobSize bounds a single stored blob.
const MaxBlobSize = 4 << 20

var (
	ErrNotFound   = errors.New("content not found")
	ErrInvalidCID = errors.New("invalid cid")
	ErrTooLarge   = fmt.Errorf("content exceeds %d bytes", MaxBlobSize)
	ErrEmpty      = errors.New("content is empty")
)

// Store is implemented by MemoryStore and BadgerStore.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, c string) ([]byte, error)
}

// Sum returns the CIDv1 of data.
func Sum(data []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("hash content: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// Parse decodes s, accepting any CID version or multibase.
func Parse(s string) (cid.Cid, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %v", ErrInvalidCID, err)
	}
	return c, nil
}

func checkPut(data []byte) error {
	if len(data) == 0 {
		return ErrEmpty
	}
	if len(data) > MaxBlobSize {
		return ErrTooLarge
	}
	return nil
}

// verify rejects data whose digest does not match c.
func verify(c cid.Cid, data []byte) error {
	got, err := c.Prefix().Sum(data)
	if err != nil {
		return fmt.Errorf("rehash %s: %w", c, err)
	}
	if !got.Equals(c) {
		return fmt.Errorf("stored content for %s is corrupt", c)
	}
	return nil
}
