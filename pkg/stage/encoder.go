package stage

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/stagelift/stagelift/pkg/catalog"
	"github.com/stagelift/stagelift/pkg/config"
	"github.com/stagelift/stagelift/pkg/task"
)

// Encoding defaults.
const (
	DefaultMaxFileSize = 15 * 1024 * 1024
	DefaultBatchSize   = 25_000
)

// File is one encoded stage file ready for upload. FileNumber starts at 1
// and increments per yielded file.
type File struct {
	Body       []byte
	FileNumber int
	RowCount   int
}

// Size returns a human-readable length of the file body.
func (f *File) Size() string {
	return formatSize(len(f.Body))
}

func formatSize(n int) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d bytes", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.2f Kb", float64(n)/1024)
	case n < 1024*1024*1024:
		return fmt.Sprintf("%.2f Mb", float64(n)/(1024*1024))
	default:
		return fmt.Sprintf("%.2f Gb", float64(n)/(1024*1024*1024))
	}
}

// EncodeOptions bound the encoder's output files.
type EncodeOptions struct {
	MaxFileSize int
	BatchSize   int
}

func (o EncodeOptions) withDefaults() EncodeOptions {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// Encoder turns a row stream into a sequence of size-bounded files.
// Next returns io.EOF after the final file.
type Encoder interface {
	Next() (*File, error)
}

// NewEncoder returns the encoder for the table's file format.
func NewEncoder(table *catalog.Table, rows task.RowReader, opts EncodeOptions) Encoder {
	if table.Meta.FileFormat == catalog.FileFormatParquet {
		return newParquetEncoder(table, rows, opts.withDefaults())
	}
	return newCSVEncoder(rows, opts.withDefaults())
}

// csvEncoder writes semicolon-separated rows through a gzip stream,
// rotating whenever the compressed buffer reaches the size bound.
type csvEncoder struct {
	rows       task.RowReader
	opts       EncodeOptions
	buf        bytes.Buffer
	gz         *gzip.Writer
	csv        *csv.Writer
	fileNumber int
	rowCount   int
	exhausted  bool
}

func newCSVEncoder(rows task.RowReader, opts EncodeOptions) *csvEncoder {
	e := &csvEncoder{rows: rows, opts: opts, fileNumber: 1}
	e.reset()
	return e
}

func (e *csvEncoder) reset() {
	e.buf.Reset()
	e.gz = gzip.NewWriter(&e.buf)
	w := csv.NewWriter(e.gz)
	w.Comma = ';'
	e.csv = w
}

func (e *csvEncoder) Next() (*File, error) {
	for {
		if e.exhausted {
			if e.rowCount > 0 {
				return e.flush()
			}
			return nil, io.EOF
		}
		batch, err := readBatch(e.rows, e.opts.BatchSize)
		if err != nil {
			return nil, err
		}
		if len(batch) < e.opts.BatchSize {
			e.exhausted = true
		}
		for _, row := range batch {
			if err := e.csv.Write(formatRow(row)); err != nil {
				return nil, fmt.Errorf("encoding csv row: %w", err)
			}
		}
		e.csv.Flush()
		if err := e.csv.Error(); err != nil {
			return nil, fmt.Errorf("encoding csv batch: %w", err)
		}
		if err := e.gz.Flush(); err != nil {
			return nil, fmt.Errorf("compressing csv batch: %w", err)
		}
		e.rowCount += len(batch)
		if e.buf.Len() >= e.opts.MaxFileSize && e.rowCount > 0 {
			return e.flush()
		}
	}
}

func (e *csvEncoder) flush() (*File, error) {
	if err := e.gz.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip stream: %w", err)
	}
	file := &File{
		Body:       append([]byte(nil), e.buf.Bytes()...),
		FileNumber: e.fileNumber,
		RowCount:   e.rowCount,
	}
	e.fileNumber++
	e.rowCount = 0
	e.reset()
	return file, nil
}

// readBatch pulls up to n rows. A short batch means the reader is drained.
func readBatch(rows task.RowReader, n int) ([][]any, error) {
	batch := make([][]any, 0, n)
	for len(batch) < n {
		row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			return batch, nil
		}
		if err != nil {
			return nil, err
		}
		batch = append(batch, row)
	}
	return batch, nil
}

func formatRow(row []any) []string {
	record := make([]string, len(row))
	for i, value := range row {
		record[i] = formatValue(value)
	}
	return record
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(config.TimestampFormat)
	default:
		return fmt.Sprintf("%v", v)
	}
}
