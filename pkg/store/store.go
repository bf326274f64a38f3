package store

import (
	"errors"

	"github.com/stagelift/stagelift/pkg/catalog"
	"github.com/stagelift/stagelift/pkg/task"
)

var (
	// ErrTaskNotFound indicates a task_id with no persisted record.
	ErrTaskNotFound = errors.New("task not found")

	// ErrJobNotFound indicates a job_id with no persisted record.
	ErrJobNotFound = errors.New("job not found")

	// ErrWatermarkRequired indicates a watermark operation on a table that
	// declares no timestamp_field.
	ErrWatermarkRequired = errors.New("timestamp_field is not set")
)

// TaskStore persists and reconstructs single tasks.
type TaskStore interface {
	PutTask(t task.Task) error
	GetTask(taskID string) (task.Task, error)
}

// JobStore persists a job row plus the rows of all its tasks.
type JobStore interface {
	PutJob(job *task.Job) error
	GetJob(jobID string) (*task.Job, error)
}

// WatermarkStore persists the latest observed timestamp per table. It
// satisfies both the planner's getter and the load engine's setter.
type WatermarkStore interface {
	Latest(table *catalog.Table) (string, error)
	Set(table *catalog.Table, value string) error
}

// Store is the full persistence surface.
type Store interface {
	TaskStore
	JobStore
	WatermarkStore
	Close() error
}

// jobRecord is the persisted job row: task ids only, the tasks themselves
// live in the task store.
type jobRecord struct {
	JobID   string   `json:"job_id"`
	Clean   string   `json:"clean"`
	Extract []string `json:"extract"`
	Load    string   `json:"load"`
}

func jobRecordOf(job *task.Job) jobRecord {
	record := jobRecord{
		JobID: job.JobID,
		Clean: job.Clean.ID(),
		Load:  job.Load.ID(),
	}
	for _, t := range job.Extract {
		record.Extract = append(record.Extract, t.ID())
	}
	return record
}
