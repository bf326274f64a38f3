// Package metrics exposes Prometheus collectors for the staging pipeline,
// the load engine and task execution.
package metrics
