package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stagelift/stagelift/pkg/catalog"
	"github.com/stagelift/stagelift/pkg/config"
	"github.com/stagelift/stagelift/pkg/log"
	"github.com/stagelift/stagelift/pkg/metrics"
)

// Cursor executes statements on one warehouse connection and returns the
// result rows.
type Cursor interface {
	Execute(ctx context.Context, stmt string) ([][]any, error)
	Close() error
}

// CursorOpener opens a dedicated cursor against a database. Each table's
// load runs on its own cursor.
type CursorOpener interface {
	OpenCursor(ctx context.Context, database string) (Cursor, error)
}

// WatermarkStore persists the latest observed timestamp per table.
type WatermarkStore interface {
	Latest(table *catalog.Table) (string, error)
	Set(table *catalog.Table, value string) error
}

// Engine runs load sequences against the warehouse. It satisfies the
// task.Loader interface.
type Engine struct {
	opener CursorOpener
	marks  WatermarkStore
	clock  func() time.Time
	logger zerolog.Logger
}

// NewEngine creates a load engine over the given cursor opener and
// watermark store.
func NewEngine(opener CursorOpener, marks WatermarkStore) *Engine {
	return &Engine{
		opener: opener,
		marks:  marks,
		clock:  time.Now,
		logger: log.WithComponent("load"),
	}
}

// WithClock pins the engine's load_date stamp, primarily for tests.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Load materializes the table's staged files. The statement sequence runs
// in order on one cursor; after the terminal statement the table's
// watermark is refreshed when it tracks one.
func (e *Engine) Load(ctx context.Context, table *catalog.Table, truncate *bool) (string, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.LoadDuration, table.SchemaName(), table.Name)

	builder := &Builder{Table: table, Now: e.clock}
	statements, err := builder.LoadStatements(truncate)
	if err != nil {
		return "", err
	}
	if table.Meta.HasUpsertKey() && (truncate == nil || !*truncate) {
		e.logger.Info().Msgf("Upsert %s...", table.URI())
	} else {
		e.logger.Info().Msgf("Overwrite %s...", table.URI())
	}

	cursor, err := e.opener.OpenCursor(ctx, table.DatabaseName())
	if err != nil {
		return "", fmt.Errorf("%w: opening cursor for %s: %v", ErrWarehouse, table.URI(), err)
	}
	defer cursor.Close()

	var copyMessages []string
	for _, stmt := range statements {
		e.logger.Info().Msg(stmt.SQL)
		rows, err := cursor.Execute(ctx, stmt.SQL)
		if err != nil {
			return "", fmt.Errorf("%w: %s on %s: %v", ErrWarehouse, stmt.Category, table.URI(), err)
		}
		metrics.LoadStatementsTotal.WithLabelValues(string(stmt.Category)).Inc()
		copyMessages = append(copyMessages, e.logResult(stmt.Category, rows)...)
	}

	if table.Meta.TimestampField != "" {
		if err := e.refreshWatermark(ctx, cursor, table); err != nil {
			return "", err
		}
	}
	if len(copyMessages) > 3 {
		return fmt.Sprintf("Loaded %d files into %s.", len(copyMessages), table.URI()), nil
	}
	return strings.Join(copyMessages, "; "), nil
}

// logResult reports one statement's outcome by category and returns the
// per-file messages of COPY statements.
func (e *Engine) logResult(category Category, rows [][]any) []string {
	if len(rows) == 0 {
		return nil
	}
	switch category {
	case CategoryDrop, CategoryCreate, CategoryTruncate:
		e.logger.Info().Msgf("%s: %v", category, rows[0][0])
	case CategoryUpdate, CategoryInsert, CategoryDelete:
		e.logger.Info().Msgf("%s: %v rows affected.", category, rows[0][0])
	case CategoryCopy:
		messages := make([]string, 0, len(rows))
		for _, row := range rows {
			var msg string
			if len(row) == 1 {
				// single column result carries the error message
				msg = fmt.Sprintf("%v", row[0])
			} else {
				msg = fmt.Sprintf("file: %v, status: %v, parsed %v, loaded %v", row[0], row[1], row[2], row[3])
			}
			messages = append(messages, fmt.Sprintf("%s: %s", category, msg))
			e.logger.Info().Msg(messages[len(messages)-1])
		}
		return messages
	}
	return nil
}

// refreshWatermark commits MAX(timestamp_field) to the watermark store.
func (e *Engine) refreshWatermark(ctx context.Context, cursor Cursor, table *catalog.Table) error {
	stmt := fmt.Sprintf("SELECT MAX(%s) FROM %s", table.Meta.TimestampField, table.URI())
	rows, err := cursor.Execute(ctx, stmt)
	if err != nil {
		return fmt.Errorf("%w: reading MAX(%s) from %s: %v", ErrWarehouse, table.Meta.TimestampField, table.URI(), err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 || rows[0][0] == nil {
		return nil
	}
	value := formatTimestamp(rows[0][0])
	if err := e.marks.Set(table, value); err != nil {
		return err
	}
	e.logger.Info().Msgf("Set latest timestamp %s=%s for %s", table.Meta.TimestampField, value, table.URI())
	return nil
}

// RefreshWatermark reads MAX(timestamp_field) from the warehouse and
// persists it, outside of a load. Tables without a timestamp_field are
// skipped.
func (e *Engine) RefreshWatermark(ctx context.Context, table *catalog.Table) error {
	if table.Meta.TimestampField == "" {
		return nil
	}
	cursor, err := e.opener.OpenCursor(ctx, table.DatabaseName())
	if err != nil {
		return fmt.Errorf("%w: opening cursor for %s: %v", ErrWarehouse, table.URI(), err)
	}
	defer cursor.Close()
	return e.refreshWatermark(ctx, cursor, table)
}

// CreateTables materializes the filtered catalog tables in the warehouse.
// With overwrite, existing tables are dropped first; their schemas are
// dropped too only when no table names are given.
func (e *Engine) CreateTables(ctx context.Context, warehouse *catalog.Warehouse, schemaNames, tableNames []string, overwrite bool) error {
	cursor, err := e.opener.OpenCursor(ctx, warehouse.DatabaseName())
	if err != nil {
		return fmt.Errorf("%w: opening cursor: %v", ErrWarehouse, err)
	}
	defer cursor.Close()

	dropSchemas := tableNames == nil && overwrite
	for _, schema := range warehouse.Schemas() {
		if !schemaSelected(schema.Name, schemaNames) {
			continue
		}
		schemaURI := fmt.Sprintf("%s.%s", warehouse.DatabaseName(), schema.Name)
		if dropSchemas {
			if _, err := cursor.Execute(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaURI)); err != nil {
				return fmt.Errorf("%w: dropping schema %s: %v", ErrWarehouse, schemaURI, err)
			}
			e.logger.Info().Msgf("Dropped %s.", schemaURI)
		}
		if _, err := cursor.Execute(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaURI)); err != nil {
			return fmt.Errorf("%w: creating schema %s: %v", ErrWarehouse, schemaURI, err)
		}
		tables := warehouse.Filter([]string{schema.Name}, tableNames, false)
		for _, table := range tables {
			builder := &Builder{Table: table, Now: e.clock}
			dropStmt := builder.DropTargetStatement()
			createStmt := builder.CreateTableOnlyStatement()
			if overwrite {
				if _, err := cursor.Execute(ctx, dropStmt); err != nil {
					return fmt.Errorf("%w: dropping %s: %v", ErrWarehouse, table.URI(), err)
				}
				e.logger.Info().Msgf("Dropped %s.", table.URI())
			}
			if _, err := cursor.Execute(ctx, createStmt); err != nil {
				e.logger.Warn().Err(err).Msgf("Could not create %s.", table.URI())
				continue
			}
			e.logger.Info().Msgf("Created %s.", table.URI())
		}
	}
	return nil
}

func schemaSelected(name string, schemaNames []string) bool {
	if schemaNames == nil {
		return true
	}
	for _, candidate := range schemaNames {
		if candidate == name {
			return true
		}
	}
	return false
}

func formatTimestamp(value any) string {
	switch v := value.(type) {
	case time.Time:
		return v.Format(config.TimestampFormat)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
