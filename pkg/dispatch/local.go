package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stagelift/stagelift/pkg/log"
	"github.com/stagelift/stagelift/pkg/metrics"
	"github.com/stagelift/stagelift/pkg/task"
)

// JobStore persists planned jobs for audit; a nil store disables
// persistence.
type JobStore interface {
	PutJob(job *task.Job) error
}

// Runner executes schedules locally, one task at a time. Tasks within a
// job run strictly in order: clean, every extract, load.
type Runner struct {
	runtime     *task.Runtime
	store       JobStore
	stopOnError bool
	logger      zerolog.Logger
}

// NewRunner creates a local runner over the given runtime.
func NewRunner(runtime *task.Runtime) *Runner {
	return &Runner{
		runtime: runtime,
		logger:  log.WithComponent("dispatch"),
	}
}

// WithStore persists each job before running it.
func (r *Runner) WithStore(store JobStore) *Runner {
	r.store = store
	return r
}

// WithStopOnError aborts the remaining jobs after the first failure.
func (r *Runner) WithStopOnError(stop bool) *Runner {
	r.stopOnError = stop
	return r
}

// RunSchedule executes every job of the schedule in order. Failed jobs
// abort the run when stop-on-error is set; otherwise they are reported and
// the runner proceeds. The returned error is the first job failure.
func (r *Runner) RunSchedule(ctx context.Context, schedule *task.Schedule) error {
	var firstErr error
	for _, job := range schedule.Jobs {
		if err := r.RunJob(ctx, job); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if r.stopOnError {
				return err
			}
			r.logger.Error().Err(err).Str("job_id", job.JobID).Msg("Job failed")
		}
	}
	return firstErr
}

// RunJob executes one job. The first task failure aborts the job: a rerun
// starts with clean, so partial stage state is safe to leave behind.
func (r *Runner) RunJob(ctx context.Context, job *task.Job) error {
	if r.store != nil {
		if err := r.store.PutJob(job); err != nil {
			return fmt.Errorf("persisting job %s: %w", job.JobID, err)
		}
	}
	logger := r.logger.With().Str("job_id", job.JobID).Logger()
	for _, t := range job.Tasks() {
		result, err := r.runTask(ctx, t)
		if err != nil {
			return fmt.Errorf("job %s: %s %s: %w", job.JobID, t.Type(), t.ID(), err)
		}
		if result != nil && result.Message != "" {
			logger.Info().Str("task_type", t.Type()).Msg(result.Message)
		}
	}
	return nil
}

func (r *Runner) runTask(ctx context.Context, t task.Task) (*task.Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.TaskDuration, t.Type())
	result, err := t.Execute(ctx, r.runtime)
	if err != nil {
		metrics.TasksTotal.WithLabelValues(t.Type(), "error").Inc()
		return nil, err
	}
	metrics.TasksTotal.WithLabelValues(t.Type(), "ok").Inc()
	return result, nil
}
