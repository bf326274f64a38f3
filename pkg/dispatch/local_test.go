package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagelift/stagelift/pkg/catalog"
	"github.com/stagelift/stagelift/pkg/extract"
	"github.com/stagelift/stagelift/pkg/log"
	"github.com/stagelift/stagelift/pkg/task"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

// traceStage records the order of stage operations.
type traceStage struct {
	mu    sync.Mutex
	calls []string
	fail  string
}

func (s *traceStage) record(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	if s.fail == call {
		return fmt.Errorf("injected failure at %s", call)
	}
	return nil
}

func (s *traceStage) Clean(_ context.Context, table *catalog.Table) (string, error) {
	return "cleaned", s.record("clean:" + table.Name)
}

func (s *traceStage) Upload(_ context.Context, table *catalog.Table, batch int, rows task.RowReader, _ int, _ task.Deadline) (string, error) {
	for {
		if _, err := rows.Next(); err != nil {
			break
		}
	}
	return "uploaded", s.record(fmt.Sprintf("extract:%s:%d", table.Name, batch))
}

// traceLoader records load calls.
type traceLoader struct {
	stage *traceStage
}

func (l *traceLoader) Load(_ context.Context, table *catalog.Table, _ *bool) (string, error) {
	return "loaded", l.stage.record("load:" + table.Name)
}

func testRuntime(t *testing.T, stage *traceStage, document string) *task.Runtime {
	t.Helper()
	warehouse, err := catalog.Load([]byte(document))
	require.NoError(t, err)
	registry := extract.NewRegistry()
	for _, schema := range warehouse.Schemas() {
		for _, table := range schema.Tables() {
			registry.Register(schema.Name, table.Name,
				func(context.Context, *catalog.Table, *task.ExtractTask) (task.RowReader, error) {
					return extract.Rows([][]any{{"a"}}), nil
				})
		}
	}
	return &task.Runtime{
		Catalog:    warehouse,
		Stage:      stage,
		Loader:     &traceLoader{stage: stage},
		Extractors: registry,
	}
}

const twoTableDoc = `schema0:
  table0:
    _meta:
      batches: 2
    column0: varchar
  table1:
    column0: varchar
`

func TestRunJobOrdering(t *testing.T) {
	stage := &traceStage{}
	runtime := testRuntime(t, stage, twoTableDoc)
	table, err := runtime.Catalog.Table("schema0", "table0")
	require.NoError(t, err)

	job, err := task.NewJob(table, nil)
	require.NoError(t, err)
	require.NoError(t, NewRunner(runtime).RunJob(context.Background(), job))

	assert.Equal(t, []string{
		"clean:table0",
		"extract:table0:0",
		"extract:table0:1",
		"load:table0",
	}, stage.calls, "clean runs before extracts, load runs last")
}

func TestRunScheduleContinuesOnError(t *testing.T) {
	stage := &traceStage{fail: "load:table0"}
	runtime := testRuntime(t, stage, twoTableDoc)

	schedule, err := task.ScheduleFromTables(runtime.Catalog.Filter(nil, nil, false), task.DefaultTaskOptions())
	require.NoError(t, err)
	require.Len(t, schedule.Jobs, 2)

	err = NewRunner(runtime).RunSchedule(context.Background(), schedule)
	require.Error(t, err, "the first failure is reported")
	assert.Contains(t, stage.calls, "load:table1", "remaining jobs still ran")
}

func TestRunScheduleStopOnError(t *testing.T) {
	stage := &traceStage{fail: "extract:table0:0"}
	runtime := testRuntime(t, stage, twoTableDoc)

	schedule, err := task.ScheduleFromTables(runtime.Catalog.Filter(nil, nil, false), task.DefaultTaskOptions())
	require.NoError(t, err)

	err = NewRunner(runtime).WithStopOnError(true).RunSchedule(context.Background(), schedule)
	require.Error(t, err)
	assert.NotContains(t, stage.calls, "clean:table1", "remaining jobs aborted")
	assert.NotContains(t, stage.calls, "load:table0", "failed job aborted at the failing task")
}

func TestErrorScheduleFails(t *testing.T) {
	runtime := testRuntime(t, &traceStage{}, twoTableDoc)
	schedule := task.ErrorSchedule(map[string]string{"FAIL_ON_ERROR": "true"})
	err := NewRunner(runtime).RunSchedule(context.Background(), schedule)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Test Error")
}

func TestPipelinePayloadShape(t *testing.T) {
	payload := PipelinePayload{
		Schedule: task.NewScheduleTask([]string{"schema0"}, nil, task.DefaultTaskOptions()),
		Refresh:  true,
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"schedule"`)
	assert.Contains(t, string(data), `"task_type":"ScheduleTask"`)
	assert.Contains(t, string(data), `"refresh":true`)
	assert.NotContains(t, string(data), `"predict"`, "unset switches are elided")
}
