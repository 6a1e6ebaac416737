package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
)

// Key layout:
//
//	meta/next_batch_id   → uint64 big-endian
//	batch/<id, 8 bytes>  → JSON-encoded model.Batch (provenance included)
//	incentive/<address>  → uint64 big-endian
var (
	keyNextBatchID  = []byte("meta/next_batch_id")
	prefixBatch     = []byte("batch/")
	prefixIncentive = []byte("incentive/")
)

// BadgerStore persists the registry in an embedded Badger key-value database.
// Every operation runs in a single Badger transaction.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an open Badger database. The caller owns db and must
// close it.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Create allocates the next id and writes b.
func (r *BadgerStore) Create(_ context.Context, b *model.Batch) (uint64, error) {
	var id uint64
	err := r.db.Update(func(txn *badger.Txn) error {
		next, err := readUint64(txn, keyNextBatchID)
		if err != nil {
			return err
		}
		if next == 0 {
			next = 1
		}
		id = next
		if err := txn.Set(keyNextBatchID, encodeUint64(next+1)); err != nil {
			return err
		}

		stored := b.Clone()
		stored.ID = id
		return putBatch(txn, stored)
	})
	if err != nil {
		return 0, fmt.Errorf("create batch: %w", err)
	}
	b.ID = id
	return id, nil
}

// Get returns the batch with the given id.
func (r *BadgerStore) Get(_ context.Context, id uint64) (*model.Batch, error) {
	var b *model.Batch
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		b, err = getBatch(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Update replaces the stored batch, preserving its provenance.
func (r *BadgerStore) Update(_ context.Context, b *model.Batch) error {
	return r.db.Update(func(txn *badger.Txn) error {
		cur, err := getBatch(txn, b.ID)
		if err != nil {
			return err
		}
		next := b.Clone()
		next.Provenance = cur.Provenance
		return putBatch(txn, next)
	})
}

// AppendProvenance appends e to the batch's provenance.
func (r *BadgerStore) AppendProvenance(_ context.Context, id uint64, e model.ProvenanceEntry) (int, error) {
	var idx int
	err := r.db.Update(func(txn *badger.Txn) error {
		b, err := getBatch(txn, id)
		if err != nil {
			return err
		}
		b.Provenance = append(b.Provenance, e)
		idx = len(b.Provenance) - 1
		return putBatch(txn, b)
	})
	return idx, err
}

// IncentiveBalance returns p's points, 0 when unseen.
func (r *BadgerStore) IncentiveBalance(_ context.Context, p model.Principal) (uint64, error) {
	var n uint64
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		n, err = readUint64(txn, incentiveKey(p))
		return err
	})
	return n, err
}

// UpdateWithIncentive replaces the stored batch and adds delta to p's
// balance in one transaction.
func (r *BadgerStore) UpdateWithIncentive(_ context.Context, b *model.Batch, p model.Principal, delta int64) (uint64, error) {
	var balance uint64
	err := r.db.Update(func(txn *badger.Txn) error {
		cur, err := getBatch(txn, b.ID)
		if err != nil {
			return err
		}
		key := incentiveKey(p)
		held, err := readUint64(txn, key)
		if err != nil {
			return err
		}
		if balance, err = adjustBalance(p, held, delta); err != nil {
			return err
		}

		next := b.Clone()
		next.Provenance = cur.Provenance
		if err := putBatch(txn, next); err != nil {
			return err
		}
		if delta == 0 {
			return nil
		}
		return txn.Set(key, encodeUint64(balance))
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func batchKey(id uint64) []byte {
	return append(append([]byte{}, prefixBatch...), encodeUint64(id)...)
}

func incentiveKey(p model.Principal) []byte {
	addr := p.Address()
	return append(append([]byte{}, prefixIncentive...), addr.Bytes()...)
}

func getBatch(txn *badger.Txn, id uint64) (*model.Batch, error) {
	item, err := txn.Get(batchKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	var b model.Batch
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode batch %d: %w", id, err)
	}
	if b.Provenance == nil {
		b.Provenance = []model.ProvenanceEntry{}
	}
	return &b, nil
}

func putBatch(txn *badger.Txn, b *model.Batch) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode batch %d: %w", b.ID, err)
	}
	return txn.Set(batchKey(b.ID), raw)
}

// readUint64 returns 0 for a missing key.
func readUint64(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	var n uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("key %q: want 8 bytes, got %d", key, len(val))
		}
		n = binary.BigEndian.Uint64(val)
		return nil
	})
	return n, err
}

func encodeUint64(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}
