package extract

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagelift/stagelift/pkg/catalog"
	"github.com/stagelift/stagelift/pkg/task"
)

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	fn := func(context.Context, *catalog.Table, *task.ExtractTask) (task.RowReader, error) {
		return Rows(nil), nil
	}
	registry.Register("Schema0", "Table0", fn)

	_, ok := registry.Resolve("schema0", "table0")
	assert.True(t, ok, "registration keys are case-insensitive")

	_, ok = registry.Resolve("schema0", "other")
	assert.False(t, ok)
}

func TestRowsReader(t *testing.T) {
	reader := Rows([][]any{{"a"}, {"b"}})

	row, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, row)

	row, err = reader.Next()
	require.NoError(t, err)
	assert.Equal(t, []any{"b"}, row)

	_, err = reader.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestWithLimit(t *testing.T) {
	reader := WithLimit(Rows([][]any{{"a"}, {"b"}, {"c"}}), 2)

	var count int
	for {
		if _, err := reader.Next(); err != nil {
			break
		}
		count++
	}
	assert.Equal(t, 2, count)

	unlimited := WithLimit(Rows([][]any{{"a"}}), 0)
	row, err := unlimited.Next()
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, row, "zero limit means no cap")
}

func TestMapRows(t *testing.T) {
	warehouse, err := catalog.Load([]byte(`schema0:
  table0:
    column0: varchar
    column1:
      dtype: varchar
      source: SourceName
`))
	require.NoError(t, err)
	table, err := warehouse.Table("schema0", "table0")
	require.NoError(t, err)

	reader := MapRows(table, []map[string]any{
		{"column0": "a", "SourceName": "b", "extra": "dropped"},
	})
	row, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, row, "rows follow column order via source names")

	_, err = reader.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDeadlineFromContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deadline := DeadlineFromContext(ctx)
	remaining := deadline.RemainingMillis()
	assert.Greater(t, remaining, int64(50_000))
	assert.LessOrEqual(t, remaining, int64(60_000))

	noDeadline := DeadlineFromContext(context.Background())
	assert.Equal(t, int64(0), noDeadline.RemainingMillis())
}

func TestFixedDeadline(t *testing.T) {
	assert.Equal(t, int64(1234), FixedDeadline(1234).RemainingMillis())
}
