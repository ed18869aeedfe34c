// Package kvstore persists job records in an embedded badger database so job
// handles survive restarts without a Postgres server.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/jonathan/bulk-plasmid-seq/internal/types"
)

const jobPrefix = "job/"

// JobStore is a badger-backed job store.
type JobStore struct {
	db *badger.DB
}

// Open opens (or creates) a job store in dir.
func Open(dir string) (*JobStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store at %s: %w", dir, err)
	}
	return &JobStore{db: db}, nil
}

// OpenInMemory opens a store that keeps everything in memory.
func OpenInMemory() (*JobStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory badger store: %w", err)
	}
	return &JobStore{db: db}, nil
}

// Close closes the underlying database.
func (s *JobStore) Close() error {
	return s.db.Close()
}

func jobKey(id uuid.UUID) []byte {
	return []byte(jobPrefix + id.String())
}

// Create stores a new job; an existing id is an error.
func (s *JobStore) Create(_ context.Context, job *types.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(jobKey(job.ID))
		if err == nil {
			return fmt.Errorf("job %s already exists", job.ID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check job %s: %w", job.ID, err)
		}
		return txn.Set(jobKey(job.ID), data)
	})
}

// Update replaces an existing job.
func (s *JobStore) Update(_ context.Context, job *types.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(jobKey(job.ID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("job %s not found", job.ID)
			}
			return fmt.Errorf("failed to check job %s: %w", job.ID, err)
		}
		return txn.Set(jobKey(job.ID), data)
	})
}

// Get returns the job, or nil if it does not exist.
func (s *JobStore) Get(_ context.Context, id uuid.UUID) (*types.Job, error) {
	var job *types.Job
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(jobKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			job = &types.Job{}
			return json.Unmarshal(val, job)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return job, nil
}

// List returns jobs newest first.
func (s *JobStore) List(_ context.Context, limit int) ([]*types.Job, error) {
	var out []*types.Job
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(jobPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var job types.Job
				if err := json.Unmarshal(val, &job); err != nil {
					return err
				}
				out = append(out, &job)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkInterrupted fails every job left pending or running by a previous
// process. It returns how many jobs were changed.
func (s *JobStore) MarkInterrupted(ctx context.Context, message string) (int, error) {
	jobs, err := s.List(ctx, 0)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, job := range jobs {
		if job.Status.Terminal() {
			continue
		}
		job.Status = types.JobStatusFailed
		job.ErrorKind = "runtime"
		job.ErrorMessage = message
		if err := s.Update(ctx, job); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
