package task

import "errors"

var (
	// ErrUnknownTaskType indicates deserialization of a task_type no
	// constructor is registered for.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrExtractorMissing indicates an ExtractTask whose table has no
	// registered extractor.
	ErrExtractorMissing = errors.New("no extractor registered")

	// ErrInvalidDateFormat indicates a date string the planner cannot parse.
	ErrInvalidDateFormat = errors.New("invalid date format")

	// ErrInvalidRange indicates a batch computation over an unset or
	// exceeded time range.
	ErrInvalidRange = errors.New("invalid time range")
)
