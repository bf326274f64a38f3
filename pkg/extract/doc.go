// Package extract connects user-registered extractors to the task runtime:
// a registry keyed by schema and table, a deadline handle derived from the
// execution context, and row-reader adapters for slices, map rows and
// database/sql result sets.
package extract
