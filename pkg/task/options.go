package task

import "encoding/json"

// TaskOptions carries the user-supplied knobs for one job. The zero value
// is not valid; use DefaultTaskOptions.
type TaskOptions struct {
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`
	Batches     int    `json:"batches"`
	TotalRows   int    `json:"total_rows"`
	Limit       int    `json:"limit"`
	TestError   bool   `json:"test_error"`
	FailOnError string `json:"fail_on_error"`
}

// DefaultTaskOptions returns the option defaults: one batch, no bounds,
// errors reported but not fatal.
func DefaultTaskOptions() TaskOptions {
	return TaskOptions{Batches: 1, FailOnError: "false"}
}

// IsDefault reports whether no option differs from its default.
func (o TaskOptions) IsDefault() bool {
	return o == DefaultTaskOptions()
}

// MarshalJSON emits only the fields that differ from their defaults.
func (o TaskOptions) MarshalJSON() ([]byte, error) {
	defaults := DefaultTaskOptions()
	m := make(map[string]any)
	if o.Start != "" {
		m["start"] = o.Start
	}
	if o.End != "" {
		m["end"] = o.End
	}
	if o.Batches != defaults.Batches {
		m["batches"] = o.Batches
	}
	if o.TotalRows != 0 {
		m["total_rows"] = o.TotalRows
	}
	if o.Limit != 0 {
		m["limit"] = o.Limit
	}
	if o.TestError {
		m["test_error"] = o.TestError
	}
	if o.FailOnError != defaults.FailOnError {
		m["fail_on_error"] = o.FailOnError
	}
	return json.Marshal(m)
}

// UnmarshalJSON fills absent fields with their defaults.
func (o *TaskOptions) UnmarshalJSON(data []byte) error {
	type plain TaskOptions
	p := plain(DefaultTaskOptions())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*o = TaskOptions(p)
	return nil
}
