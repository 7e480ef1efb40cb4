// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore is the durable audit trail, one key per cycle under an
// embedded Badger database. Keys are big-endian sequence numbers so that
// lexicographic order is append order and Recent is a reverse scan.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

var _ Store = (*BadgerStore)(nil)

var cyclePrefix = []byte("cycle/")

// NewBadgerStore opens (or creates) the audit database at dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // badger's own logger is too chatty for a sidecar store

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store at %s: %w", dir, err)
	}
	seq, err := db.GetSequence([]byte("cycle_seq"), 64)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open audit sequence: %w", err)
	}
	slog.Info("audit store opened", "dir", dir)
	return &BadgerStore{db: db, seq: seq}, nil
}

func cycleKey(n uint64) []byte {
	key := make([]byte, len(cyclePrefix)+8)
	copy(key, cyclePrefix)
	binary.BigEndian.PutUint64(key[len(cyclePrefix):], n)
	return key
}

func (s *BadgerStore) Append(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode cycle record: %w", err)
	}
	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("failed to advance cycle sequence: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cycleKey(n), payload)
	})
	if err != nil {
		return fmt.Errorf("failed to append cycle record: %w", err)
	}
	return nil
}

func (s *BadgerStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = cyclePrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last possible cycle key, then walk backwards.
		seek := cycleKey(^uint64(0))
		for it.Seek(seek); it.ValidForPrefix(cyclePrefix) && len(out) < limit; it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("failed to decode cycle record: %w", err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Last(ctx context.Context) (Record, bool, error) {
	recs, err := s.Recent(ctx, 1)
	if err != nil {
		return Record{}, false, err
	}
	if len(recs) == 0 {
		return Record{}, false, nil
	}
	return recs[0], true, nil
}

func (s *BadgerStore) Count(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = cyclePrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(cyclePrefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		slog.Warn("failed to release cycle sequence", "error", err)
	}
	return s.db.Close()
}
