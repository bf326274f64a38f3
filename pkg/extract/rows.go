package extract

import (
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/stagelift/stagelift/pkg/catalog"
	"github.com/stagelift/stagelift/pkg/log"
	"github.com/stagelift/stagelift/pkg/task"
)

// sliceReader replays an in-memory row set.
type sliceReader struct {
	rows [][]any
	pos  int
}

// Rows returns a reader over an in-memory row set.
func Rows(rows [][]any) task.RowReader {
	return &sliceReader{rows: rows}
}

func (r *sliceReader) Next() ([]any, error) {
	if r.pos >= len(r.rows) {
		return nil, io.EOF
	}
	row := r.rows[r.pos]
	r.pos++
	return row, nil
}

// mapReader projects map rows onto the table's column order, matching each
// column by its source name.
type mapReader struct {
	columns []*catalog.Column
	rows    []map[string]any
	pos     int
}

// MapRows returns a reader that converts map rows into positional rows
// following the table's column order.
func MapRows(table *catalog.Table, rows []map[string]any) task.RowReader {
	return &mapReader{columns: table.Columns(), rows: rows}
}

func (r *mapReader) Next() ([]any, error) {
	if r.pos >= len(r.rows) {
		return nil, io.EOF
	}
	source := r.rows[r.pos]
	r.pos++
	row := make([]any, len(r.columns))
	for i, column := range r.columns {
		row[i] = source[column.SourceName()]
	}
	return row, nil
}

// limitReader stops after n rows.
type limitReader struct {
	inner task.RowReader
	left  int
}

// WithLimit caps the reader at limit rows; zero or negative means no cap.
func WithLimit(rows task.RowReader, limit int) task.RowReader {
	if limit <= 0 {
		return rows
	}
	return &limitReader{inner: rows, left: limit}
}

func (r *limitReader) Next() ([]any, error) {
	if r.left <= 0 {
		return nil, io.EOF
	}
	row, err := r.inner.Next()
	if err != nil {
		return nil, err
	}
	r.left--
	return row, nil
}

// sqlReader streams a database/sql result set, logging fetch progress per
// batch the way a batched cursor would.
type sqlReader struct {
	rows      *sql.Rows
	batchSize int
	fetched   int
	started   time.Time
}

// RowsFromSQL streams a query result as positional rows. The result set is
// closed when drained or on error.
func RowsFromSQL(rows *sql.Rows, batchSize int) task.RowReader {
	if batchSize <= 0 {
		batchSize = 10_000
	}
	return &sqlReader{rows: rows, batchSize: batchSize, started: time.Now()}
}

func (r *sqlReader) Next() ([]any, error) {
	if !r.rows.Next() {
		defer r.rows.Close()
		if err := r.rows.Err(); err != nil {
			return nil, fmt.Errorf("fetching rows: %w", err)
		}
		extractLogger := log.WithComponent("extract")
		extractLogger.Info().Msg("No more rows to fetch.")
		return nil, io.EOF
	}
	columns, err := r.rows.Columns()
	if err != nil {
		r.rows.Close()
		return nil, err
	}
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}
	if err := r.rows.Scan(pointers...); err != nil {
		r.rows.Close()
		return nil, fmt.Errorf("scanning row: %w", err)
	}
	r.fetched++
	if r.fetched%r.batchSize == 0 {
		extractLogger := log.WithComponent("extract")
		extractLogger.Info().Msgf("Fetched %d rows [%d entries] in %.2f seconds.",
			r.fetched, r.fetched*len(columns), time.Since(r.started).Seconds())
	}
	return values, nil
}
