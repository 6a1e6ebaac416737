package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var prefixContent = []byte("content/")

// BadgerStore keeps blobs in a Badger database under the "content/" prefix.
// It can share a database with the batch registry.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an open database. The caller owns db.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Put stores data and returns its CID. Storing the same bytes twice is a
// no-op.
func (s *BadgerStore) Put(_ context.Context, data []byte) (string, error) {
	if err := checkPut(data); err != nil {
		return "", err
	}
	c, err := Sum(data)
	if err != nil {
		return "", err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(contentKey(c.Hash()), data)
	}); err != nil {
		return "", fmt.Errorf("store %s: %w", c, err)
	}
	return c.String(), nil
}

// Get returns the blob addressed by c after checking its digest.
func (s *BadgerStore) Get(_ context.Context, c string) ([]byte, error) {
	id, err := Parse(c)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(contentKey(id.Hash()))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", c, err)
	}
	if err := verify(id, data); err != nil {
		return nil, err
	}
	return data, nil
}

func contentKey(mh []byte) []byte {
	return append(append([]byte{}, prefixContent...), mh...)
}
