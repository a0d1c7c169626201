// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keeper

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/zeebo/blake3"
)

var ErrNoHistory = errors.New("keeper: no calibration history")

// History stores calibration records in a key-value database. Keys are
// blake3(pool) followed by the big-endian record ID, so a prefix scan
// over a pool yields its records in issue order.
type History struct {
	db database.Database
}

func NewHistory(db database.Database) *History {
	return &History{db: db}
}

func poolPrefix(pool [32]byte) []byte {
	h := blake3.New()
	h.Write([]byte("calibration"))
	h.Write(pool[:])
	prefix := make([]byte, 32)
	h.Digest().Read(prefix)
	return prefix
}

func recordKey(pool [32]byte, id int64) []byte {
	key := make([]byte, 0, 40)
	key = append(key, poolPrefix(pool)...)
	return binary.BigEndian.AppendUint64(key, uint64(id))
}

// Put stores rec under its pool and ID.
func (h *History) Put(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := h.db.Put(recordKey(rec.Pool, rec.ID.Int64()), data); err != nil {
		return fmt.Errorf("keeper: store record %s: %w", rec.ID, err)
	}
	return nil
}

// List returns every record of pool, oldest first.
func (h *History) List(pool [32]byte) ([]*Record, error) {
	it := h.db.NewIteratorWithPrefix(poolPrefix(pool))
	defer it.Release()

	var out []*Record
	for it.Next() {
		rec := new(Record)
		if err := json.Unmarshal(it.Value(), rec); err != nil {
			return nil, fmt.Errorf("keeper: decode record %x: %w", it.Key(), err)
		}
		out = append(out, rec)
	}
	return out, it.Error()
}

// Latest returns the newest record of pool.
func (h *History) Latest(pool [32]byte) (*Record, error) {
	recs, err := h.List(pool)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNoHistory
	}
	return recs[len(recs)-1], nil
}
