// Package log provides structured logging for stagelift using zerolog.
//
// A single global logger is initialized once at startup; components derive
// child loggers carrying component, table, job and task identity fields.
package log
