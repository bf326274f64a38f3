// Package dispatch executes schedules: locally as a sequential runner, or
// remotely by submitting the planning payload to the workflow engine.
package dispatch
