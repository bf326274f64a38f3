// Package store persists tasks, jobs and per-table watermarks in a
// key-value store.
//
// Two implementations share the Store interface: a bbolt-backed store for
// local runs and tests, and a DynamoDB-backed store for deployed workers.
// Task rows hold the full serialized task keyed by task_id; job rows hold
// the task ids of their clean, extract and load slots; watermark rows are
// keyed by table_uri. All writes are idempotent, last write wins.
package store
