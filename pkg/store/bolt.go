package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/stagelift/stagelift/pkg/catalog"
	"github.com/stagelift/stagelift/pkg/config"
	"github.com/stagelift/stagelift/pkg/task"
)

var (
	// Bucket names
	bucketTasks      = []byte("tasks")
	bucketJobs       = []byte("jobs")
	bucketWatermarks = []byte("watermarks")
)

// BoltStore implements Store using bbolt.
type BoltStore struct {
	db    *bolt.DB
	clock func() time.Time
}

// NewBoltStore opens (or creates) the store database in dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "stagelift.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{bucketTasks, bucketJobs, bucketWatermarks}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, clock: time.Now}, nil
}

// WithClock pins the store's updated stamps, primarily for tests.
func (s *BoltStore) WithClock(clock func() time.Time) *BoltStore {
	s.clock = clock
	return s
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// PutTask writes the task's wire form keyed by task_id. Rewrites are
// idempotent.
func (s *BoltStore) PutTask(t task.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		return b.Put([]byte(t.ID()), data)
	})
}

// GetTask reconstructs a task from its persisted wire form.
func (s *BoltStore) GetTask(taskID string) (task.Task, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		value := b.Get([]byte(taskID))
		if value == nil {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		data = append([]byte(nil), value...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task.DefaultFactory.FromJSON(data)
}

// PutJob writes the job row and every task row of the job.
func (s *BoltStore) PutJob(job *task.Job) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data, err := json.Marshal(jobRecordOf(job))
		if err != nil {
			return err
		}
		return b.Put([]byte(job.JobID), data)
	})
	if err != nil {
		return err
	}
	for _, t := range job.Tasks() {
		if err := s.PutTask(t); err != nil {
			return err
		}
	}
	return nil
}

// GetJob reconstructs a job and its tasks.
func (s *BoltStore) GetJob(jobID string) (*task.Job, error) {
	var record jobRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data := b.Get([]byte(jobID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	job := &task.Job{JobID: record.JobID}
	if job.Clean, err = s.GetTask(record.Clean); err != nil {
		return nil, err
	}
	for _, taskID := range record.Extract {
		t, err := s.GetTask(taskID)
		if err != nil {
			return nil, err
		}
		job.Extract = append(job.Extract, t)
	}
	if job.Load, err = s.GetTask(record.Load); err != nil {
		return nil, err
	}
	return job, nil
}

// Latest returns the stored watermark for the table, or empty when none
// has been written yet.
func (s *BoltStore) Latest(table *catalog.Table) (string, error) {
	field := table.Meta.TimestampField
	if field == "" {
		return "", fmt.Errorf("%w for %s", ErrWatermarkRequired, table.URI())
	}
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWatermarks)
		data := b.Get([]byte(table.URI()))
		if data == nil {
			return nil
		}
		var record map[string]string
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		value = record[field]
		return nil
	})
	return value, err
}

// Set writes the watermark record for the table. Last write wins.
func (s *BoltStore) Set(table *catalog.Table, value string) error {
	field := table.Meta.TimestampField
	if field == "" {
		return fmt.Errorf("%w for %s", ErrWatermarkRequired, table.URI())
	}
	record := map[string]string{
		"table_uri": table.URI(),
		field:       value,
		"updated":   s.clock().Format(config.TimestampFormat),
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWatermarks)
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put([]byte(table.URI()), data)
	})
}
