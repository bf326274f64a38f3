package stage

import (
	"fmt"

	"github.com/stagelift/stagelift/pkg/catalog"
)

// Suffixes of staged files by encoding.
const (
	SuffixCSV     = "csv.gz"
	SuffixParquet = "parquet"
)

// SuffixFor returns the object suffix for a table's file format.
func SuffixFor(fileFormat string) string {
	if fileFormat == catalog.FileFormatParquet {
		return SuffixParquet
	}
	return SuffixCSV
}

// Prefix returns the object prefix holding all staged files of a table.
func Prefix(table *catalog.Table) string {
	return fmt.Sprintf("%s/%s/", table.SchemaName(), table.Name)
}

// Key returns the object key for one staged file. Batch and file numbers
// are zero-padded to at least two digits.
func Key(table *catalog.Table, batch, file int, suffix string) string {
	return fmt.Sprintf("%s/%s/%s_b%02d_f%02d.%s",
		table.SchemaName(), table.Name, table.Name, batch, file, suffix)
}
