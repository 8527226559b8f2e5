// Package storage provides persistent storage for SmartAir Guardian training history.
// It uses BoltDB as the underlying storage engine. Each training run is recorded with its
// evaluation report and a summary of the synthetic table it was fit on, so the serving
// process can report which run produced the models it loaded.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"smartair-guardian/internal/dataset"
	"smartair-guardian/internal/ml"

	"go.etcd.io/bbolt"
)

const (
	dbFile     = "guardian.db"
	runsBucket = "training_runs" // Bucket name for training run records
)

// ErrNoRuns is returned when no training run has been recorded.
var ErrNoRuns = errors.New("no training runs recorded")

// RunRecord is one training run as stored.
type RunRecord struct {
	ml.Report
	Seed      uint64          `json:"seed"`
	ModelsDir string          `json:"models_dir"`
	Dataset   dataset.Summary `json:"dataset"`
}

// Store provides persistent storage for training runs using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New opens (or creates) the database under dataPath and ensures its buckets exist.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(runsBucket)); err != nil {
			return fmt.Errorf("create runs bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordRun stores a training run. Keys sort by training time.
func (s *Store) RecordRun(run RunRecord) error {
	if run.RunID == "" {
		return fmt.Errorf("run record has no run ID")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))

		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}

		return b.Put(runKey(run.TrainedAt, run.RunID), data)
	})
}

// LatestRun returns the most recently trained run, or ErrNoRuns.
func (s *Store) LatestRun() (RunRecord, error) {
	runs, err := s.ListRuns(1)
	if err != nil {
		return RunRecord{}, err
	}
	if len(runs) == 0 {
		return RunRecord{}, ErrNoRuns
	}
	return runs[0], nil
}

// ListRuns returns up to limit runs, newest first. A non-positive limit returns all runs.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	var runs []RunRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			var run RunRecord
			if err := json.Unmarshal(v, &run); err != nil {
				continue // Skip malformed records
			}
			runs = append(runs, run)
		}
		return nil
	})

	return runs, err
}

// RunsBetween returns runs trained within [start, end], oldest first.
func (s *Store) RunsBetween(start, end time.Time) ([]RunRecord, error) {
	var runs []RunRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()

		startKey := []byte(fmt.Sprintf("%020d", start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%020d_\xff", end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			var run RunRecord
			if err := json.Unmarshal(v, &run); err != nil {
				continue
			}
			runs = append(runs, run)
		}
		return nil
	})

	return runs, err
}

func runKey(trainedAt time.Time, runID string) []byte {
	return []byte(fmt.Sprintf("%020d_%s", trainedAt.UnixNano(), runID))
}
