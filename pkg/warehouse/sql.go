package warehouse

import (
	"fmt"
	"strings"
	"time"

	"github.com/stagelift/stagelift/pkg/catalog"
	"github.com/stagelift/stagelift/pkg/config"
)

// StageSuffix qualifies the staging table used by upsert loads.
const StageSuffix = "_stage"

// Category classifies a statement for result logging.
type Category string

const (
	CategoryDrop     Category = "DROP"
	CategoryCreate   Category = "CREATE"
	CategoryTruncate Category = "TRUNCATE"
	CategoryCopy     Category = "COPY"
	CategoryUpdate   Category = "UPDATE"
	CategoryDelete   Category = "DELETE"
	CategoryInsert   Category = "INSERT"
)

// Statement is one SQL command of a load sequence.
type Statement struct {
	Category Category
	SQL      string
}

// Builder generates the load statement sequences for one table. The clock
// is injectable so load_date stamps are reproducible in tests.
type Builder struct {
	Table *catalog.Table
	Now   func() time.Time
}

// NewBuilder creates a statement builder for table.
func NewBuilder(table *catalog.Table) *Builder {
	return &Builder{Table: table, Now: time.Now}
}

func (b *Builder) nowStamp() string {
	loc, err := time.LoadLocation(config.DefaultTimezone)
	if err != nil {
		loc = time.UTC
	}
	return b.Now().In(loc).Format("2006-01-02 15:04:05")
}

func checkSuffix(suffix string) error {
	if suffix != "" && suffix != StageSuffix {
		return fmt.Errorf("%w: %q", ErrInvalidSuffix, suffix)
	}
	return nil
}

// LoadStatements returns the full statement sequence for the table's load
// mode. A non-nil truncate overrides the table's own policy: true forces a
// full overwrite even for keyed tables.
func (b *Builder) LoadStatements(truncate *bool) ([]Statement, error) {
	effective := b.Table.Meta.Truncate
	if truncate != nil {
		effective = truncate
	}
	if !b.Table.Meta.HasUpsertKey() || (effective != nil && *effective) {
		return b.overwriteStatements()
	}
	return b.upsertStatements()
}

// LoadStatementsString joins the load sequence for display and tests.
func (b *Builder) LoadStatementsString(truncate *bool) (string, error) {
	statements, err := b.LoadStatements(truncate)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(statements))
	for i, stmt := range statements {
		parts[i] = stmt.SQL
	}
	return strings.Join(parts, ";\n"), nil
}

func (b *Builder) overwriteStatements() ([]Statement, error) {
	copyStmt, err := b.CopyStatement("")
	if err != nil {
		return nil, err
	}
	update, err := b.UpdateLoadDateStatement("")
	if err != nil {
		return nil, err
	}
	return []Statement{
		{CategoryTruncate, b.TruncateStatement()},
		{CategoryCopy, copyStmt},
		{CategoryUpdate, update},
	}, nil
}

func (b *Builder) upsertStatements() ([]Statement, error) {
	copyStmt, err := b.CopyStatement(StageSuffix)
	if err != nil {
		return nil, err
	}
	update, err := b.UpdateLoadDateStatement(StageSuffix)
	if err != nil {
		return nil, err
	}
	deleteStmt, err := b.DeleteStatement()
	if err != nil {
		return nil, err
	}
	return []Statement{
		{CategoryDrop, b.DropStagingStatement()},
		{CategoryCreate, b.CreateStagingStatement()},
		{CategoryCopy, copyStmt},
		{CategoryUpdate, update},
		{CategoryDelete, deleteStmt},
		{CategoryInsert, b.InsertStatement()},
	}, nil
}

// TruncateStatement empties the target table.
func (b *Builder) TruncateStatement() string {
	return fmt.Sprintf("TRUNCATE TABLE IF EXISTS %s", b.Table.URI())
}

// DropStagingStatement removes a leftover staging table.
func (b *Builder) DropStagingStatement() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s%s", b.Table.URI(), StageSuffix)
}

// CreateStagingStatement creates the staging table with the target's shape.
func (b *Builder) CreateStagingStatement() string {
	return fmt.Sprintf("CREATE TABLE %s%s LIKE %s", b.Table.URI(), StageSuffix, b.Table.URI())
}

// UpdateLoadDateStatement stamps loaded rows with the load time.
func (b *Builder) UpdateLoadDateStatement(suffix string) (string, error) {
	if err := checkSuffix(suffix); err != nil {
		return "", err
	}
	return fmt.Sprintf("UPDATE %s%s SET load_date='%s'", b.Table.URI(), suffix, b.nowStamp()), nil
}

// InsertStatement moves staged rows into the target table.
func (b *Builder) InsertStatement() string {
	return fmt.Sprintf("INSERT INTO %s SELECT * FROM %s%s", b.Table.URI(), b.Table.URI(), StageSuffix)
}

// DeleteStatement removes target rows superseded by staged rows: by
// primary-key equality when a primary key is declared, else by the staged
// timestamp range (NULL timestamps included). Tables with neither cannot
// resolve an upsert.
func (b *Builder) DeleteStatement() (string, error) {
	meta := b.Table.Meta
	if meta.PrimaryKey != "" {
		matches := make([]string, 0, len(meta.PrimaryKeyColumns()))
		for _, column := range meta.PrimaryKeyColumns() {
			matches = append(matches, fmt.Sprintf("%s.%s = %s%s.%s",
				b.Table.Name, column, b.Table.Name, StageSuffix, column))
		}
		return fmt.Sprintf("DELETE FROM %s USING %s%s WHERE %s",
			b.Table.URI(), b.Table.URI(), StageSuffix, strings.Join(matches, " AND ")), nil
	}
	if meta.TimestampKey != "" {
		return fmt.Sprintf(
			"DELETE FROM %s USING (SELECT MIN(%s) AS min_ts, MAX(%s) AS max_ts FROM %s%s) AS range "+
				"WHERE (%s BETWEEN range.min_ts AND range.max_ts) OR %s IS NULL",
			b.Table.URI(), meta.TimestampKey, meta.TimestampKey, b.Table.URI(), StageSuffix,
			meta.TimestampKey, meta.TimestampKey), nil
	}
	return "", fmt.Errorf("%w: %s needs a primary_key or timestamp_key for upsert", ErrLoadPolicyUnresolved, b.Table.URI())
}

// FileFormatClause returns the COPY file-format options for the table,
// preferring a named external format over the inline dialect.
func (b *Builder) FileFormatClause() string {
	meta := b.Table.Meta
	if meta.StageFileFormat != "" {
		return fmt.Sprintf("FORMAT_NAME='%s.public.%s'", b.Table.DatabaseName(), meta.StageFileFormat)
	}
	if meta.FileFormat == catalog.FileFormatParquet {
		return "TYPE=PARQUET"
	}
	return `TYPE=CSV FIELD_DELIMITER=';' SKIP_BLANK_LINES=TRUE TRIM_SPACE=TRUE FIELD_OPTIONALLY_ENCLOSED_BY='"'`
}

// stageFiles returns the staged-file location referenced by COPY.
func (b *Builder) stageFiles() string {
	return fmt.Sprintf("%s.%s/%s/%s/",
		b.Table.DatabaseName(), config.DatabaseStage(), b.Table.SchemaName(), b.Table.Name)
}

// CopyStatement loads the staged files into the target (or staging) table.
// Columns are projected explicitly; parquet columns are cast from the
// variant, with datetime read back from microsecond timestamps.
func (b *Builder) CopyStatement(suffix string) (string, error) {
	if err := checkSuffix(suffix); err != nil {
		return "", err
	}
	columnNames := strings.Join(b.Table.ColumnNames(), ", ")
	if b.Table.Meta.FileFormat == catalog.FileFormatParquet && b.Table.Meta.StageFileFormat == "" {
		casts := make([]string, 0, len(b.Table.Columns()))
		for _, column := range b.Table.Columns() {
			if column.Dtype == "datetime" || column.Dtype == "timestamp" {
				casts = append(casts, fmt.Sprintf("TO_TIMESTAMP_NTZ($1:%s::int, 6)", column.Name))
			} else {
				casts = append(casts, fmt.Sprintf("$1:%s::%s", column.Name, column.Dtype))
			}
		}
		return fmt.Sprintf("COPY INTO %s%s (%s) FROM ( SELECT %s FROM @%s ) FILE_FORMAT=( %s )",
			b.Table.URI(), suffix, columnNames, strings.Join(casts, ", "), b.stageFiles(), b.FileFormatClause()), nil
	}
	return fmt.Sprintf("COPY INTO %s%s (%s) FROM @%s FILE_FORMAT=( %s )",
		b.Table.URI(), suffix, columnNames, b.stageFiles(), b.FileFormatClause()), nil
}

// DropTargetStatement removes the target table itself.
func (b *Builder) DropTargetStatement() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", b.Table.URI())
}

// CreateTableOnlyStatement returns the CREATE TABLE DDL with the declared
// columns plus the load_date stamp.
func (b *Builder) CreateTableOnlyStatement() string {
	var columns []string
	for _, column := range b.Table.Columns() {
		line := fmt.Sprintf("    %s %s", column.Name, strings.ToUpper(column.Dtype))
		if column.Description != "" {
			line += fmt.Sprintf(" COMMENT '%s'", column.Description)
		}
		columns = append(columns, line)
	}
	columns = append(columns, "    load_date DATETIME")
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)", b.Table.URI(), strings.Join(columns, ",\n"))
}

// CreateTableStatement returns the DDL materializing the catalog table:
// a drop and a create.
func (b *Builder) CreateTableStatement() string {
	return b.DropTargetStatement() + ";\n" + b.CreateTableOnlyStatement()
}
