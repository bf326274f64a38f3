package main

import (
	"context"
	"fmt"
	"os"

	"github.com/stagelift/stagelift/pkg/catalog"
	"github.com/stagelift/stagelift/pkg/config"
	"github.com/stagelift/stagelift/pkg/extract"
	"github.com/stagelift/stagelift/pkg/stage"
	"github.com/stagelift/stagelift/pkg/store"
	"github.com/stagelift/stagelift/pkg/task"
	"github.com/stagelift/stagelift/pkg/warehouse"
)

// extractors is the process-wide registry. Source adapters bind their
// extract functions here before commands execute.
var extractors = extract.NewRegistry()

func dataDir() (string, error) {
	dir := os.Getenv("DATA_DIR")
	if dir == "" {
		dir = ".stagelift"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating data directory %s: %w", dir, err)
	}
	return dir, nil
}

// newRuntime wires the task runtime: catalog, stage client, load engine,
// extractor registry and the local store. The cleanup func releases the
// store.
func newRuntime(ctx context.Context) (*task.Runtime, *store.BoltStore, func(), error) {
	warehouseCatalog, err := catalog.LoadFile("")
	if err != nil {
		return nil, nil, nil, err
	}
	bucket, err := stage.NewS3Bucket(config.StageBucket())
	if err != nil {
		return nil, nil, nil, err
	}
	dir, err := dataDir()
	if err != nil {
		return nil, nil, nil, err
	}
	boltStore, err := store.NewBoltStore(dir)
	if err != nil {
		return nil, nil, nil, err
	}
	engine := warehouse.NewEngine(warehouse.NewSQLOpenerFromEnv(), boltStore)
	runtime := &task.Runtime{
		Catalog:    warehouseCatalog,
		Stage:      stage.NewClient(bucket),
		Loader:     engine,
		Extractors: extractors,
		Marks:      boltStore,
		Deadline:   extract.DeadlineFromContext(ctx),
	}
	cleanup := func() { boltStore.Close() }
	return runtime, boltStore, cleanup, nil
}

// newEngine wires just the load engine and its watermark store.
func newEngine() (*warehouse.Engine, func(), error) {
	dir, err := dataDir()
	if err != nil {
		return nil, nil, err
	}
	boltStore, err := store.NewBoltStore(dir)
	if err != nil {
		return nil, nil, err
	}
	engine := warehouse.NewEngine(warehouse.NewSQLOpenerFromEnv(), boltStore)
	return engine, func() { boltStore.Close() }, nil
}
