// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/octomirror/octomirror/internal/models"
)

const jobKeyPrefix = "job:"

// ErrJobNotFound is returned when a job id is unknown to the store.
var ErrJobNotFound = errors.New("job not found")

// Store persists jobs to a Badger database so queued work and recent job
// history survive restarts.
type Store struct {
	db *badger.DB
}

// OpenStore opens the job store at path. An empty path opens an in-memory
// store, used by tests and by deployments that opt out of durability.
func OpenStore(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes the job's current state.
func (s *Store) Put(job *models.Job) error {
	return s.put(job, 0)
}

// PutWithTTL writes a terminal job with an expiry, bounding how long
// finished jobs stay visible.
func (s *Store) PutWithTTL(job *models.Job, ttl time.Duration) error {
	return s.put(job, ttl)
}

func (s *Store) put(job *models.Job, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(jobKeyPrefix+job.ID), data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Get loads one job by id.
func (s *Store) Get(id string) (*models.Job, error) {
	var job models.Job
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(jobKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrJobNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &job)
		})
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Delete removes one job record.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(jobKeyPrefix + id))
	})
}

// All returns every stored job, live and finished alike.
func (s *Store) All() ([]*models.Job, error) {
	var out []*models.Job
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(jobKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var job models.Job
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &job)
			})
			if err != nil {
				return err
			}
			out = append(out, &job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RunGC reclaims value log space. Badger returns ErrNoRewrite when there
// is nothing to collect, which is not an error for callers.
func (s *Store) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}
