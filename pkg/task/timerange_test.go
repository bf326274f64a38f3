package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagelift/stagelift/pkg/catalog"
)

func TestTimeRangeDefaults(t *testing.T) {
	r := TimeRange{}
	assert.Equal(t, MinStart, r.StartString())
	assert.Equal(t, MaxEnd, r.EndString())

	start, err := r.StartTime()
	require.NoError(t, err)
	assert.Equal(t, 1900, start.Year())
	end, err := r.EndTime()
	require.NoError(t, err)
	assert.Equal(t, 2100, end.Year())
}

func TestTimeRangeDateNormalization(t *testing.T) {
	r := TimeRange{Start: "2024-01-01", End: "2024-01-03"}

	start, err := r.StartTime()
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00", start.Format("2006-01-02T15:04:05"))

	end, err := r.EndTime()
	require.NoError(t, err)
	assert.Equal(t, "2024-01-03T23:59:59", end.Format("2006-01-02T15:04:05"))
}

func TestTimeRangeBatches(t *testing.T) {
	r := TimeRange{Start: "2024-01-01", End: "2024-01-03"}

	n, err := r.BatchN()
	require.NoError(t, err)
	assert.Equal(t, 3, n, "day span is inclusive")

	first, err := r.BatchDate(0)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", first.Format("2006-01-02"))

	last, err := r.BatchDate(2)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-03", last.Format("2006-01-02"))

	_, err = r.BatchDate(3)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestTimeRangeUnsetBounds(t *testing.T) {
	r := TimeRange{Start: "2024-01-01"}
	_, err := r.BatchN()
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = r.BatchDate(0)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestTimeRangeInvalidFormat(t *testing.T) {
	r := TimeRange{Start: "01.02.2024T00:00:00", End: "2024-01-03"}
	_, err := r.StartTime()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDateFormat)
	assert.Contains(t, err.Error(), "2006-01-02T15:04:05", "error names the required format")
}

type fixedMarks map[string]string

func (m fixedMarks) Latest(table *catalog.Table) (string, error) {
	return m[table.URI()], nil
}

func TestTimeRangeWatermarkFeedthrough(t *testing.T) {
	warehouse := testWarehouse(t, `schema0:
  table0:
    _meta:
      timestamp_field: column1
    column0: varchar
    column1: datetime
`)
	table := testTable(t, warehouse, "schema0", "table0")
	marks := fixedMarks{table.URI(): "2024-01-01T00:00:00"}

	job, err := NewJob(table, nil)
	require.NoError(t, err)
	extractTask := job.Extract[0].(*ExtractTask)
	require.Empty(t, extractTask.Options.Start)

	r, err := extractTask.TimeRange(table, marks)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00", r.Start)
}

func TestTimeRangeExplicitStartWins(t *testing.T) {
	warehouse := testWarehouse(t, `schema0:
  table0:
    _meta:
      timestamp_field: column1
    column0: varchar
    column1: datetime
`)
	table := testTable(t, warehouse, "schema0", "table0")
	marks := fixedMarks{table.URI(): "2024-01-01T00:00:00"}

	options := DefaultTaskOptions()
	options.Start = "2024-06-01"
	r, err := TimeRangeFor(options, table, marks)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", r.Start)
}
