package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stagelift/stagelift/pkg/catalog"
)

// now is replaced in tests to pin look-back windows.
var now = time.Now

// Job is the clean / extract / load sequence for exactly one table. Jobs
// are immutable once constructed. The slots are polymorphic: error
// schedules carry ErrorTasks in place of the regular variants.
type Job struct {
	JobID   string `json:"job_id"`
	Clean   Task   `json:"clean"`
	Extract []Task `json:"extract"`
	Load    Task   `json:"load"`
}

// NewJob plans the job for one table. User options are copied so planning
// never mutates the caller's value; look-back tables get a day-aligned
// window and one extract batch per day when range-keyed.
func NewJob(table *catalog.Table, options *TaskOptions) (*Job, error) {
	opts := DefaultTaskOptions()
	if options != nil {
		opts = *options
	}
	if opts.Start == "" && table.Meta.LookBackDays > 0 {
		if table.Meta.TimestampKey != "" {
			opts.Batches = table.Meta.LookBackDays
		} else {
			opts.Batches = 1
		}
		loc, err := time.LoadLocation(table.Timezone())
		if err != nil {
			return nil, fmt.Errorf("loading timezone %q: %w", table.Timezone(), err)
		}
		end := now().In(loc)
		start := end.AddDate(0, 0, -table.Meta.LookBackDays)
		opts.Start = start.Format(time.DateOnly)
		opts.End = end.Format(time.DateOnly)
	}
	opts.Batches = max(opts.Batches, table.Meta.Batches)
	opts.TotalRows = table.Meta.TotalRows

	jobID := NewID()
	extract := make([]Task, opts.Batches)
	for n := range extract {
		extract[n] = NewExtractTask(jobID, table, n, opts)
	}
	return &Job{
		JobID:   jobID,
		Clean:   NewCleanTask(jobID, table),
		Extract: extract,
		Load:    NewLoadTask(jobID, table),
	}, nil
}

// UnmarshalJSON reconstructs the polymorphic task slots through the task
// factory.
func (j *Job) UnmarshalJSON(data []byte) error {
	var raw struct {
		JobID   string            `json:"job_id"`
		Clean   json.RawMessage   `json:"clean"`
		Extract []json.RawMessage `json:"extract"`
		Load    json.RawMessage   `json:"load"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	j.JobID = raw.JobID
	clean, err := DefaultFactory.FromJSON(raw.Clean)
	if err != nil {
		return err
	}
	j.Clean = clean
	j.Extract = make([]Task, 0, len(raw.Extract))
	for _, item := range raw.Extract {
		t, err := DefaultFactory.FromJSON(item)
		if err != nil {
			return err
		}
		j.Extract = append(j.Extract, t)
	}
	load, err := DefaultFactory.FromJSON(raw.Load)
	if err != nil {
		return err
	}
	j.Load = load
	return nil
}

// Tasks returns the job's tasks in execution order.
func (j *Job) Tasks() []Task {
	tasks := make([]Task, 0, len(j.Extract)+2)
	tasks = append(tasks, j.Clean)
	tasks = append(tasks, j.Extract...)
	return append(tasks, j.Load)
}

// Schedule is an ordered list of jobs. It serializes to
// {"schedule": [...]}, with an empty array when no tables matched.
type Schedule struct {
	Jobs []*Job
}

// MarshalJSON always emits the schedule key, never null.
func (s Schedule) MarshalJSON() ([]byte, error) {
	jobs := s.Jobs
	if jobs == nil {
		jobs = []*Job{}
	}
	return json.Marshal(map[string]any{"schedule": jobs})
}

// UnmarshalJSON restores the job list.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	var raw struct {
		Jobs []*Job `json:"schedule"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Jobs = raw.Jobs
	return nil
}

// ScheduleFromTables plans one job per table, skipping tables marked ignore.
func ScheduleFromTables(tables []*catalog.Table, options TaskOptions) (*Schedule, error) {
	schedule := &Schedule{}
	for _, table := range tables {
		if table.Meta.Ignore {
			continue
		}
		job, err := NewJob(table, &options)
		if err != nil {
			return nil, err
		}
		schedule.Jobs = append(schedule.Jobs, job)
	}
	return schedule, nil
}

// ErrorSchedule returns a single job whose clean, extract and load slots
// all fail, with the given env bindings applied at execution time.
func ErrorSchedule(envs map[string]string) *Schedule {
	errorTask := NewErrorTask(NewID(), envs)
	return &Schedule{Jobs: []*Job{{
		JobID:   NewID(),
		Clean:   errorTask,
		Extract: []Task{errorTask},
		Load:    errorTask,
	}}}
}
