package task

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/stagelift/stagelift/pkg/catalog"
	"github.com/stagelift/stagelift/pkg/config"
)

// RowReader is a lazy, finite, non-restartable row sequence pulled by the
// stage encoder. Next returns io.EOF after the last row.
type RowReader interface {
	Next() ([]any, error)
}

// Extractor produces the rows of one extract batch. It receives the
// execution context but not the Runtime's Deadline handle, which is passed
// to the stage upload; the remaining time reaches the extractor only
// through the context's deadline.
type Extractor func(ctx context.Context, table *catalog.Table, task *ExtractTask) (RowReader, error)

// ExtractorResolver looks up the extractor registered for a table.
type ExtractorResolver interface {
	Resolve(schemaName, tableName string) (Extractor, bool)
}

// Deadline exposes the remaining execution time to extractors.
type Deadline interface {
	RemainingMillis() int64
}

// Stage is the staging surface tasks execute against.
type Stage interface {
	// Clean deletes all staged objects under the table's prefix.
	Clean(ctx context.Context, table *catalog.Table) (string, error)
	// Upload encodes rows into partitioned compressed files under the
	// table's prefix for the given batch number.
	Upload(ctx context.Context, table *catalog.Table, batch int, rows RowReader, totalRows int, deadline Deadline) (string, error)
}

// Loader materializes staged files into the target table.
type Loader interface {
	Load(ctx context.Context, table *catalog.Table, truncate *bool) (string, error)
}

// WatermarkGetter reads the persisted latest timestamp for a table.
type WatermarkGetter interface {
	Latest(table *catalog.Table) (string, error)
}

// Runtime bundles the collaborators a task needs to execute.
type Runtime struct {
	Catalog    *catalog.Warehouse
	Stage      Stage
	Loader     Loader
	Extractors ExtractorResolver
	Marks      WatermarkGetter
	Deadline   Deadline
}

// Result is the outcome a task reports back to its caller.
type Result struct {
	Message  string    `json:"message,omitempty"`
	Schedule *Schedule `json:"schedule,omitempty"`
}

// Task is one executable unit of work.
type Task interface {
	Type() string
	ID() string
	Execute(ctx context.Context, rt *Runtime) (*Result, error)
}

// Task type discriminators.
const (
	TypeClean    = "CleanTask"
	TypeExtract  = "ExtractTask"
	TypeLoad     = "LoadTask"
	TypeSchedule = "ScheduleTask"
	TypeError    = "ErrorTask"
)

// core carries the discriminator and stable identity shared by all tasks.
type core struct {
	TaskType string `json:"task_type"`
	TaskID   string `json:"task_id"`
}

func newCore(taskType string) core {
	return core{TaskType: taskType, TaskID: NewID()}
}

// NewID returns a fresh 128-bit random identifier in hex.
func NewID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// Type returns the task_type discriminator.
func (c core) Type() string { return c.TaskType }

// ID returns the task's stable identity.
func (c core) ID() string { return c.TaskID }

// TableRef names the catalog table a task operates on. All parts are
// lowercase and must resolve in the catalog at execution time.
type TableRef struct {
	JobID    string `json:"job_id"`
	Database string `json:"database_name"`
	Schema   string `json:"schema_name"`
	Table    string `json:"table_name"`
}

func newTableRef(jobID string, table *catalog.Table) TableRef {
	ref := TableRef{
		JobID:    jobID,
		Database: table.DatabaseName(),
		Schema:   table.SchemaName(),
		Table:    table.Name,
	}
	ref.normalize()
	return ref
}

func (r *TableRef) normalize() {
	r.Database = strings.ToLower(r.Database)
	r.Schema = strings.ToLower(r.Schema)
	r.Table = strings.ToLower(r.Table)
}

func (r *TableRef) validate() error {
	switch {
	case r.JobID == "":
		return fmt.Errorf("job_id is required")
	case r.Database == "":
		return fmt.Errorf("database_name is required")
	case r.Schema == "":
		return fmt.Errorf("schema_name is required")
	case r.Table == "":
		return fmt.Errorf("table_name is required")
	}
	return nil
}

// URI returns the database.schema.table identifier the task targets.
func (r TableRef) URI() string {
	return fmt.Sprintf("%s.%s.%s", r.Database, r.Schema, r.Table)
}

// Resolve looks the referenced table up in the catalog.
func (r TableRef) Resolve(warehouse *catalog.Warehouse) (*catalog.Table, error) {
	return warehouse.Table(r.Schema, r.Table)
}

// CleanTask removes all staged objects for its table.
type CleanTask struct {
	core
	TableRef
}

// NewCleanTask creates the clean step of a job.
func NewCleanTask(jobID string, table *catalog.Table) *CleanTask {
	return &CleanTask{core: newCore(TypeClean), TableRef: newTableRef(jobID, table)}
}

// Execute deletes the table's stage prefix.
func (t *CleanTask) Execute(ctx context.Context, rt *Runtime) (*Result, error) {
	table, err := t.Resolve(rt.Catalog)
	if err != nil {
		return nil, err
	}
	message, err := rt.Stage.Clean(ctx, table)
	if err != nil {
		return nil, err
	}
	return &Result{Message: message}, nil
}

// ExtractTask pulls one batch of rows from the table's extractor into the
// stage.
type ExtractTask struct {
	core
	TableRef
	TaskNumber int         `json:"task_number,omitempty"`
	Options    TaskOptions `json:"options"`
}

// NewExtractTask creates extract batch number n of a job.
func NewExtractTask(jobID string, table *catalog.Table, n int, options TaskOptions) *ExtractTask {
	return &ExtractTask{
		core:       newCore(TypeExtract),
		TableRef:   newTableRef(jobID, table),
		TaskNumber: n,
		Options:    options,
	}
}

// Execute resolves the registered extractor and streams its rows into the
// stage under this task's batch prefix.
func (t *ExtractTask) Execute(ctx context.Context, rt *Runtime) (*Result, error) {
	table, err := t.Resolve(rt.Catalog)
	if err != nil {
		return nil, err
	}
	fn, ok := rt.Extractors.Resolve(t.Schema, t.Table)
	if !ok {
		return nil, fmt.Errorf("%w for table %s", ErrExtractorMissing, t.URI())
	}
	rows, err := fn(ctx, table, t)
	if err != nil {
		return nil, err
	}
	message, err := rt.Stage.Upload(ctx, table, t.TaskNumber, rows, t.Options.TotalRows, rt.Deadline)
	if err != nil {
		return nil, err
	}
	return &Result{Message: message}, nil
}

// TimeRange computes the effective extraction bounds for this task.
func (t *ExtractTask) TimeRange(table *catalog.Table, marks WatermarkGetter) (TimeRange, error) {
	return TimeRangeFor(t.Options, table, marks)
}

// MarshalJSON elides the options field when every option is default.
func (t *ExtractTask) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"task_type":     t.TaskType,
		"task_id":       t.TaskID,
		"job_id":        t.JobID,
		"database_name": t.Database,
		"schema_name":   t.Schema,
		"table_name":    t.Table,
	}
	if t.TaskNumber != 0 {
		m["task_number"] = t.TaskNumber
	}
	if !t.Options.IsDefault() {
		m["options"] = t.Options
	}
	return json.Marshal(m)
}

// UnmarshalJSON fills absent options with their defaults.
func (t *ExtractTask) UnmarshalJSON(data []byte) error {
	type plain ExtractTask
	p := plain{Options: DefaultTaskOptions()}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = ExtractTask(p)
	return nil
}

// LoadTask materializes the staged files into the target table.
type LoadTask struct {
	core
	TableRef
	Truncate *bool `json:"truncate,omitempty"`
}

// NewLoadTask creates the load step of a job. A non-nil truncate overrides
// the table's upsert policy.
func NewLoadTask(jobID string, table *catalog.Table) *LoadTask {
	return &LoadTask{
		core:     newCore(TypeLoad),
		TableRef: newTableRef(jobID, table),
		Truncate: table.Meta.Truncate,
	}
}

// Execute runs the load engine for the table.
func (t *LoadTask) Execute(ctx context.Context, rt *Runtime) (*Result, error) {
	table, err := t.Resolve(rt.Catalog)
	if err != nil {
		return nil, err
	}
	message, err := rt.Loader.Load(ctx, table, t.Truncate)
	if err != nil {
		return nil, err
	}
	return &Result{Message: message}, nil
}

// ErrorTask always fails. It surfaces schedule-time errors into the
// workflow engine, optionally binding environment variables first.
type ErrorTask struct {
	core
	TableRef
	Envs map[string]string `json:"envs,omitempty"`
}

// NewErrorTask creates a task that fails on execution.
func NewErrorTask(jobID string, envs map[string]string) *ErrorTask {
	return &ErrorTask{
		core: newCore(TypeError),
		TableRef: TableRef{
			JobID:    jobID,
			Database: "test database",
			Schema:   "test schema",
			Table:    "test table",
		},
		Envs: envs,
	}
}

// Execute applies the env bindings and fails.
func (t *ErrorTask) Execute(_ context.Context, _ *Runtime) (*Result, error) {
	for key, value := range t.Envs {
		os.Setenv(key, value)
	}
	return nil, fmt.Errorf("%s Test Error", t.TaskType)
}

// ScheduleTask plans jobs for a filtered set of catalog tables.
type ScheduleTask struct {
	core
	DatabaseName string      `json:"database_name,omitempty"`
	SchemaNames  []string    `json:"schema_names,omitempty"`
	TableNames   []string    `json:"table_names,omitempty"`
	Options      TaskOptions `json:"options"`
}

// NewScheduleTask creates a planning task over the given filters. Nil name
// slices select everything; empty slices select nothing.
func NewScheduleTask(schemaNames, tableNames []string, options TaskOptions) *ScheduleTask {
	t := &ScheduleTask{
		core:        newCore(TypeSchedule),
		SchemaNames: schemaNames,
		TableNames:  tableNames,
		Options:     options,
	}
	t.normalize()
	return t
}

func (t *ScheduleTask) normalize() {
	if t.DatabaseName == "" {
		t.DatabaseName = config.DatabaseName()
	}
	for i, name := range t.SchemaNames {
		t.SchemaNames[i] = strings.ToLower(name)
	}
	for i, name := range t.TableNames {
		t.TableNames[i] = strings.ToLower(name)
	}
}

// Execute filters the catalog and plans one job per selected table. With
// test_error set, it produces an error schedule (explicit tables) or fails
// immediately (no tables) to exercise downstream error handling.
func (t *ScheduleTask) Execute(_ context.Context, rt *Runtime) (*Result, error) {
	if t.Options.TestError {
		if len(t.TableNames) > 0 {
			schedule := ErrorSchedule(map[string]string{"FAIL_ON_ERROR": t.Options.FailOnError})
			return &Result{Schedule: schedule}, nil
		}
		os.Setenv("FAIL_ON_ERROR", t.Options.FailOnError)
		return nil, fmt.Errorf("%s Test Error", t.TaskType)
	}
	tables := rt.Catalog.Filter(t.SchemaNames, t.TableNames, true)
	schedule, err := ScheduleFromTables(tables, t.Options)
	if err != nil {
		return nil, err
	}
	return &Result{Schedule: schedule}, nil
}

// TimeRange computes the effective extraction bounds for this task.
func (t *ScheduleTask) TimeRange(table *catalog.Table, marks WatermarkGetter) (TimeRange, error) {
	return TimeRangeFor(t.Options, table, marks)
}

// MarshalJSON elides nil filters, the derived database name and default
// options.
func (t *ScheduleTask) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"task_type": t.TaskType,
		"task_id":   t.TaskID,
	}
	if t.DatabaseName != "" {
		m["database_name"] = t.DatabaseName
	}
	if t.SchemaNames != nil {
		m["schema_names"] = t.SchemaNames
	}
	if t.TableNames != nil {
		m["table_names"] = t.TableNames
	}
	if !t.Options.IsDefault() {
		m["options"] = t.Options
	}
	return json.Marshal(m)
}

// UnmarshalJSON fills absent options with their defaults.
func (t *ScheduleTask) UnmarshalJSON(data []byte) error {
	type plain ScheduleTask
	p := plain{Options: DefaultTaskOptions()}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = ScheduleTask(p)
	return nil
}
