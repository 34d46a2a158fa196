// Package boltstore keeps ledger run jobs in a single BoltDB file so run
// history and reports survive a service restart.
package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/dvloznov/ledger-engine/internal/jobs"
)

var (
	runsBucket    = []byte("runs")
	reportsBucket = []byte("reports")
)

// InterruptedMessage is recorded on jobs that were unfinished at startup.
const InterruptedMessage = "interrupted by service restart"

// Store is a BoltDB implementation of JobStore.
// Job metadata is stored as JSON; reports live in their own bucket.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database at path and ensures its buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore.Open: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{runsBucket, reportsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore.Open: creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveJob implements the JobStore interface.
func (s *Store) SaveJob(ctx context.Context, job *jobs.LedgerRunJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("SaveJob: encoding job %s: %w", job.JobID, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		key := []byte(job.JobID)
		if err := tx.Bucket(runsBucket).Put(key, data); err != nil {
			return err
		}
		if job.Report != nil {
			return tx.Bucket(reportsBucket).Put(key, job.Report)
		}
		return nil
	})
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.LedgerRunJob, error) {
	var job *jobs.LedgerRunJob

	err := s.db.View(func(tx *bolt.Tx) error {
		key := []byte(jobID)
		v := tx.Bucket(runsBucket).Get(key)
		if v == nil {
			return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
		}

		var err error
		job, err = decodeJob(v)
		if err != nil {
			return err
		}
		if report := tx.Bucket(reportsBucket).Get(key); report != nil {
			// Bolt values are only valid for the life of the transaction.
			job.Report = append([]byte(nil), report...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return job, nil
}

// ListJobs implements the JobStore interface. Reports are not loaded.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.LedgerRunJob, error) {
	result := []*jobs.LedgerRunJob{}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(runsBucket).ForEach(func(k, v []byte) error {
			job, err := decodeJob(v)
			if err != nil {
				return err
			}
			if filter.Status != "" && job.Status != filter.Status {
				return nil
			}
			result = append(result, job)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].JobID < result[j].JobID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.LedgerRunJob{}, nil
		}
		result = result[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// UpdateJobStatus implements the JobStore interface.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(runsBucket)
		key := []byte(jobID)

		v := b.Get(key)
		if v == nil {
			return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
		}
		job, err := decodeJob(v)
		if err != nil {
			return err
		}

		job.Status = status
		if errorMsg != "" {
			job.Error = errorMsg
		}
		return putJob(b, job)
	})
}

// FailInterrupted marks every pending, running or retrying job as failed.
// Uploaded inputs are not persisted, so such jobs cannot be resumed.
func (s *Store) FailInterrupted(ctx context.Context) (int, error) {
	failed := 0
	now := time.Now()

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(runsBucket)

		var pending []*jobs.LedgerRunJob
		err := b.ForEach(func(k, v []byte) error {
			job, err := decodeJob(v)
			if err != nil {
				return err
			}
			switch job.Status {
			case jobs.JobStatusPending, jobs.JobStatusRunning, jobs.JobStatusRetrying:
				pending = append(pending, job)
			}
			return nil
		})
		if err != nil {
			return err
		}

		// Bolt forbids modifying a bucket while iterating over it.
		for _, job := range pending {
			job.Status = jobs.JobStatusFailed
			job.Error = InterruptedMessage
			job.CompletedAt = &now
			if err := putJob(b, job); err != nil {
				return err
			}
		}
		failed = len(pending)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("FailInterrupted: %w", err)
	}

	return failed, nil
}

func decodeJob(data []byte) (*jobs.LedgerRunJob, error) {
	var job jobs.LedgerRunJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decoding job: %w", err)
	}
	return &job, nil
}

func putJob(b *bolt.Bucket, job *jobs.LedgerRunJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job %s: %w", job.JobID, err)
	}
	return b.Put([]byte(job.JobID), data)
}

var _ jobs.JobStore = (*Store)(nil)
