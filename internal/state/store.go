// Package state provides run journaling and in-run dedup state for the
// scrape pipeline.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRuns = []byte("runs")

// Journal persists terminal run records.
type Journal interface {
	Append(rec *RunRecord) error
	Get(runID string) (*RunRecord, error)
	List() ([]*RunRecord, error)
	Prune(keep int) (int, error)
	Close() error
}

// BoltJournal implements Journal using BoltDB.
type BoltJournal struct {
	db   *bolt.DB
	path string
}

// NewBoltJournal creates a new BoltDB-backed run journal.
func NewBoltJournal(path string) (*BoltJournal, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create bucket
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltJournal{db: db, path: path}, nil
}

// Append writes a run record keyed by its run id.
func (j *BoltJournal) Append(rec *RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Put([]byte(rec.RunID), data)
	})
}

// Get loads a run record. Returns nil, nil when the run is not journaled.
func (j *BoltJournal) Get(runID string) (*RunRecord, error) {
	var rec RunRecord
	var found bool

	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		data := b.Get([]byte(runID))
		if data == nil {
			return nil // Not found, but not an error
		}

		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, nil
	}

	return &rec, nil
}

// List returns all journaled runs, newest first.
func (j *BoltJournal) List() ([]*RunRecord, error) {
	var recs []*RunRecord

	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		return b.ForEach(func(_, v []byte) error {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(recs, func(i, k int) bool {
		return recs[i].StartedAt.After(recs[k].StartedAt)
	})

	return recs, nil
}

// Prune removes the oldest records beyond keep. Returns the number removed.
func (j *BoltJournal) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	recs, err := j.List()
	if err != nil {
		return 0, err
	}
	if len(recs) <= keep {
		return 0, nil
	}

	victims := recs[keep:] // List is newest first
	err = j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		for _, rec := range victims {
			if err := b.Delete([]byte(rec.RunID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(victims), nil
}

// Close closes the database.
func (j *BoltJournal) Close() error {
	return j.db.Close()
}

// MemoryJournal implements Journal in memory. Used in tests and when no
// journal path is configured.
type MemoryJournal struct {
	mu   sync.RWMutex
	recs map[string]*RunRecord
}

// NewMemoryJournal creates a new in-memory run journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		recs: make(map[string]*RunRecord),
	}
}

// Append stores a run record in memory.
func (j *MemoryJournal) Append(rec *RunRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	clone := *rec
	j.recs[rec.RunID] = &clone
	return nil
}

// Get returns the stored record, or nil, nil when absent.
func (j *MemoryJournal) Get(runID string) (*RunRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	rec, ok := j.recs[runID]
	if !ok {
		return nil, nil
	}
	clone := *rec
	return &clone, nil
}

// List returns all records, newest first.
func (j *MemoryJournal) List() ([]*RunRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	recs := make([]*RunRecord, 0, len(j.recs))
	for _, rec := range j.recs {
		clone := *rec
		recs = append(recs, &clone)
	}

	sort.Slice(recs, func(i, k int) bool {
		return recs[i].StartedAt.After(recs[k].StartedAt)
	})

	return recs, nil
}

// Prune removes the oldest records beyond keep.
func (j *MemoryJournal) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	recs, err := j.List()
	if err != nil {
		return 0, err
	}
	if len(recs) <= keep {
		return 0, nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	victims := recs[keep:]
	for _, rec := range victims {
		delete(j.recs, rec.RunID)
	}

	return len(victims), nil
}

// Close is a no-op for MemoryJournal.
func (j *MemoryJournal) Close() error {
	return nil
}
