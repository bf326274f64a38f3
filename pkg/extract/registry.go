package extract

import (
	"strings"
	"sync"

	"github.com/stagelift/stagelift/pkg/task"
)

// Registry maps tables to their extractors. It satisfies the
// task.ExtractorResolver interface. The dispatcher resolves extractors at
// task-execute time, so registration order does not matter.
type Registry struct {
	mu  sync.RWMutex
	fns map[string]task.Extractor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{fns: make(map[string]task.Extractor)}
}

func key(schemaName, tableName string) string {
	return strings.ToLower(schemaName) + "." + strings.ToLower(tableName)
}

// Register binds an extractor to a table, replacing any previous binding.
func (r *Registry) Register(schemaName, tableName string, fn task.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns[key(schemaName, tableName)] = fn
}

// Resolve returns the extractor bound to the table.
func (r *Registry) Resolve(schemaName, tableName string) (task.Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[key(schemaName, tableName)]
	return fn, ok
}
