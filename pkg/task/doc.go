// Package task defines the unit tasks an extract-load job is made of,
// their wire form and the planner that turns catalog tables into schedules.
//
// Tasks form a sealed set discriminated by the task_type field: CleanTask,
// ExtractTask, LoadTask, ScheduleTask and ErrorTask. Every task carries an
// opaque 128-bit hex task_id assigned once at construction. A Factory
// reconstructs tasks from their wire form; executing a task only requires a
// Runtime, a bundle of narrow interfaces satisfied by the stage, warehouse,
// extract and store packages.
package task
