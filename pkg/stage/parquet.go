package stage

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/stagelift/stagelift/pkg/catalog"
	"github.com/stagelift/stagelift/pkg/config"
	"github.com/stagelift/stagelift/pkg/task"
)

// parquetEncoder buffers rows into parquet files sized by an uncompressed
// estimate. Row groups use the column types declared in the catalog;
// datetime columns are written as microsecond timestamps and cast back in
// the COPY projection.
type parquetEncoder struct {
	table      *catalog.Table
	rows       task.RowReader
	opts       EncodeOptions
	metadata   []string
	fileNumber int
	exhausted  bool
}

func newParquetEncoder(table *catalog.Table, rows task.RowReader, opts EncodeOptions) *parquetEncoder {
	return &parquetEncoder{
		table:      table,
		rows:       rows,
		opts:       opts,
		metadata:   parquetMetadata(table),
		fileNumber: 1,
	}
}

func parquetMetadata(table *catalog.Table) []string {
	metadata := make([]string, 0, len(table.Columns()))
	for _, column := range table.Columns() {
		name := strings.Trim(column.Name, `"`)
		var typ string
		switch {
		case column.Dtype == "datetime" || column.Dtype == "timestamp":
			typ = "type=INT64, convertedtype=TIMESTAMP_MICROS"
		case column.Dtype == "time":
			typ = "type=INT64, convertedtype=TIME_MICROS"
		case column.Dtype == "date":
			typ = "type=INT32, convertedtype=DATE"
		case column.Dtype == "int" || column.Dtype == "bigint":
			typ = "type=INT64"
		case column.Dtype == "double" || column.Dtype == "float":
			typ = "type=DOUBLE"
		default:
			typ = "type=BYTE_ARRAY, convertedtype=UTF8"
		}
		metadata = append(metadata, fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", name, typ))
	}
	return metadata
}

func (e *parquetEncoder) Next() (*File, error) {
	if e.exhausted {
		return nil, io.EOF
	}
	var rows [][]any
	var rawSize int
	for rawSize < e.opts.MaxFileSize {
		batch, err := readBatch(e.rows, e.opts.BatchSize)
		if err != nil {
			return nil, err
		}
		for _, row := range batch {
			rawSize += rowSize(row)
		}
		rows = append(rows, batch...)
		if len(batch) < e.opts.BatchSize {
			e.exhausted = true
			break
		}
	}
	if len(rows) == 0 {
		return nil, io.EOF
	}
	body, err := e.encode(rows)
	if err != nil {
		return nil, err
	}
	file := &File{Body: body, FileNumber: e.fileNumber, RowCount: len(rows)}
	e.fileNumber++
	return file, nil
}

func (e *parquetEncoder) encode(rows [][]any) ([]byte, error) {
	var buf bytes.Buffer
	fw := writerfile.NewWriterFile(&buf)
	pw, err := writer.NewCSVWriter(e.metadata, fw, 1)
	if err != nil {
		return nil, fmt.Errorf("opening parquet writer: %w", err)
	}
	columns := e.table.Columns()
	for _, row := range rows {
		record := make([]any, len(columns))
		for i := range columns {
			var value any
			if i < len(row) {
				value = row[i]
			}
			converted, err := parquetValue(columns[i], value)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", columns[i].Name, err)
			}
			record[i] = converted
		}
		if err := pw.Write(record); err != nil {
			return nil, fmt.Errorf("writing parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("closing parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func parquetValue(column *catalog.Column, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch {
	case column.Dtype == "datetime" || column.Dtype == "timestamp" || column.Dtype == "time":
		return microsValue(value)
	case column.Dtype == "date":
		return dateValue(value)
	case column.Dtype == "int" || column.Dtype == "bigint":
		return intValue(value)
	case column.Dtype == "double" || column.Dtype == "float":
		return floatValue(value)
	default:
		return formatValue(value), nil
	}
}

func microsValue(value any) (int64, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UnixMicro(), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		t, err := time.Parse(config.TimestampFormat, v)
		if err != nil {
			return 0, fmt.Errorf("parsing timestamp %q: %w", v, err)
		}
		return t.UnixMicro(), nil
	default:
		return 0, fmt.Errorf("unsupported timestamp value %T", value)
	}
}

func dateValue(value any) (int32, error) {
	switch v := value.(type) {
	case time.Time:
		return int32(v.Unix() / 86_400), nil
	case string:
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return 0, fmt.Errorf("parsing date %q: %w", v, err)
		}
		return int32(t.Unix() / 86_400), nil
	default:
		return 0, fmt.Errorf("unsupported date value %T", value)
	}
}

func intValue(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported integer value %T", value)
	}
}

func floatValue(value any) (float64, error) {
	switch v := value.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("unsupported float value %T", value)
	}
}

func rowSize(row []any) int {
	size := 0
	for _, value := range row {
		size += len(formatValue(value)) + 1
	}
	return size
}
