package catalog

import (
	"fmt"
	"strings"

	"github.com/stagelift/stagelift/pkg/config"
)

// Column describes a single warehouse column. Identity is the name within
// its table; Dtype is normalized to lowercase.
type Column struct {
	Name        string
	Dtype       string
	Description string
	Source      string
	Meta        map[string]any
	Tests       []any
}

// NewColumn creates a column with a normalized dtype.
func NewColumn(name, dtype string) *Column {
	return &Column{Name: name, Dtype: strings.ToLower(dtype)}
}

// SourceName returns the source-side column name, falling back to the
// column name when no source is declared.
func (c *Column) SourceName() string {
	if c.Source != "" {
		return c.Source
	}
	return c.Name
}

// TableMeta holds the per-table ingestion policy.
type TableMeta struct {
	Ignore          bool
	Batches         int
	TotalRows       int
	FileFormat      string
	PrimaryKey      string
	TimestampKey    string
	BatchKey        string
	Source          string
	WhereClause     string
	LookBackDays    int
	TimestampField  string
	Timezone        string
	Truncate        *bool
	StageFileFormat string
}

// FileFormatCSV and FileFormatParquet are the supported stage encodings.
const (
	FileFormatCSV     = "csv"
	FileFormatParquet = "parquet"
)

// DefaultTableMeta returns the policy applied to tables that declare none.
func DefaultTableMeta() TableMeta {
	return TableMeta{
		Batches:    1,
		FileFormat: FileFormatCSV,
		Timezone:   config.DefaultTimezone,
	}
}

// HasUpsertKey reports whether the table merges staged rows by key or time
// range instead of overwriting.
func (m TableMeta) HasUpsertKey() bool {
	return m.PrimaryKey != "" || m.TimestampKey != ""
}

// PrimaryKeyColumns splits the semicolon-separated primary key declaration.
func (m TableMeta) PrimaryKeyColumns() []string {
	if m.PrimaryKey == "" {
		return nil
	}
	return strings.Split(m.PrimaryKey, ";")
}

// Table is one warehouse table with its ordered columns and policy.
type Table struct {
	Schema      *Schema
	Name        string
	Description string
	Meta        TableMeta
	columns     []*Column
	byName      map[string]*Column
}

// NewTable creates an empty table owned by schema.
func NewTable(schema *Schema, name string) *Table {
	return &Table{
		Schema: schema,
		Name:   name,
		Meta:   DefaultTableMeta(),
		byName: make(map[string]*Column),
	}
}

// Columns returns the columns in declaration order. The returned slice is
// shared; callers must not mutate it.
func (t *Table) Columns() []*Column {
	return t.columns
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column, or nil when absent.
func (t *Table) Column(name string) *Column {
	return t.byName[name]
}

// AddColumn appends or replaces a column. A replaced column keeps its
// original position.
func (t *Table) AddColumn(column *Column) {
	if _, ok := t.byName[column.Name]; ok {
		for i, c := range t.columns {
			if c.Name == column.Name {
				t.columns[i] = column
				break
			}
		}
	} else {
		t.columns = append(t.columns, column)
	}
	t.byName[column.Name] = column
}

// DropColumn removes the named column if present.
func (t *Table) DropColumn(name string) {
	if _, ok := t.byName[name]; !ok {
		return
	}
	delete(t.byName, name)
	for i, c := range t.columns {
		if c.Name == name {
			t.columns = append(t.columns[:i], t.columns[i+1:]...)
			break
		}
	}
}

// DatabaseName returns the database the table belongs to in the current
// environment.
func (t *Table) DatabaseName() string {
	return config.DatabaseName()
}

// SchemaName returns the owning schema's name.
func (t *Table) SchemaName() string {
	return t.Schema.Name
}

// URI returns the fully qualified database.schema.table identifier.
func (t *Table) URI() string {
	return fmt.Sprintf("%s.%s.%s", t.DatabaseName(), t.SchemaName(), t.Name)
}

// Timezone resolves the table's zone name, falling back to the default.
func (t *Table) Timezone() string {
	if t.Meta.Timezone != "" {
		return t.Meta.Timezone
	}
	return config.DefaultTimezone
}

// Schema is an ordered collection of tables owned by a warehouse.
type Schema struct {
	Warehouse   *Warehouse
	Name        string
	Description string
	Meta        map[string]any
	tables      []*Table
	byName      map[string]*Table
}

// NewSchema creates an empty schema owned by warehouse.
func NewSchema(warehouse *Warehouse, name string) *Schema {
	return &Schema{
		Warehouse: warehouse,
		Name:      name,
		byName:    make(map[string]*Table),
	}
}

// Tables returns the tables in declaration order. The returned slice is
// shared; callers must not mutate it.
func (s *Schema) Tables() []*Table {
	return s.tables
}

// Table returns the named table or ErrTableNotFound.
func (s *Schema) Table(name string) (*Table, error) {
	table, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrTableNotFound, s.Name, name)
	}
	return table, nil
}

// AddTable appends or replaces a table.
func (s *Schema) AddTable(table *Table) {
	if _, ok := s.byName[table.Name]; ok {
		for i, t := range s.tables {
			if t.Name == table.Name {
				s.tables[i] = table
				break
			}
		}
	} else {
		s.tables = append(s.tables, table)
	}
	s.byName[table.Name] = table
	table.Schema = s
}

// DropTable removes the named table if present.
func (s *Schema) DropTable(name string) {
	if _, ok := s.byName[name]; !ok {
		return
	}
	delete(s.byName, name)
	for i, t := range s.tables {
		if t.Name == name {
			s.tables = append(s.tables[:i], s.tables[i+1:]...)
			break
		}
	}
}

// filterTables selects this schema's tables.
//
// A nil name list selects all tables not marked ignore; an explicit list
// selects exactly the named tables, overriding the ignore flag. Names are
// matched lowercased.
func (s *Schema) filterTables(tableNames []string) []*Table {
	var selected []*Table
	names := lowerSet(tableNames)
	for _, table := range s.tables {
		if tableNames == nil {
			if table.Meta.Ignore {
				continue
			}
		} else if _, ok := names[table.Name]; !ok {
			continue
		}
		selected = append(selected, table)
	}
	return selected
}

// Warehouse is the root of the catalog graph.
type Warehouse struct {
	SourceFile string
	schemas    []*Schema
	byName     map[string]*Schema
}

// NewWarehouse creates an empty warehouse.
func NewWarehouse() *Warehouse {
	return &Warehouse{byName: make(map[string]*Schema)}
}

// DatabaseName returns the database targeted in the current environment.
func (w *Warehouse) DatabaseName() string {
	return config.DatabaseName()
}

// Schemas returns the schemas in declaration order. The returned slice is
// shared; callers must not mutate it.
func (w *Warehouse) Schemas() []*Schema {
	return w.schemas
}

// Schema returns the named schema or ErrSchemaNotFound.
func (w *Warehouse) Schema(name string) (*Schema, error) {
	schema, ok := w.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
	}
	return schema, nil
}

// Table resolves a table by schema and table name.
func (w *Warehouse) Table(schemaName, tableName string) (*Table, error) {
	schema, err := w.Schema(schemaName)
	if err != nil {
		return nil, err
	}
	return schema.Table(tableName)
}

// AddSchema appends or replaces a schema.
func (w *Warehouse) AddSchema(schema *Schema) {
	if _, ok := w.byName[schema.Name]; ok {
		for i, s := range w.schemas {
			if s.Name == schema.Name {
				w.schemas[i] = schema
				break
			}
		}
	} else {
		w.schemas = append(w.schemas, schema)
	}
	w.byName[schema.Name] = schema
	schema.Warehouse = w
}

// DropSchema removes the named schema if present.
func (w *Warehouse) DropSchema(name string) {
	if _, ok := w.byName[name]; !ok {
		return
	}
	delete(w.byName, name)
	for i, s := range w.schemas {
		if s.Name == name {
			w.schemas = append(w.schemas[:i], w.schemas[i+1:]...)
			break
		}
	}
}

// filterSchemas selects schemas by name; nil selects all. Names are matched
// lowercased.
func (w *Warehouse) filterSchemas(schemaNames []string) []*Schema {
	if schemaNames == nil {
		return w.schemas
	}
	names := lowerSet(schemaNames)
	var selected []*Schema
	for _, schema := range w.schemas {
		if _, ok := names[schema.Name]; ok {
			selected = append(selected, schema)
		}
	}
	return selected
}

// Filter returns the tables selected by the given schema and table names.
//
// Nil selects everything on either axis; an empty non-nil list selects
// nothing. Without explicit table names, tables marked ignore are skipped.
// With stratify, tables are interleaved round-robin across schemas so that
// concurrent jobs spread across source systems.
func (w *Warehouse) Filter(schemaNames, tableNames []string, stratify bool) []*Table {
	queues := make([][]*Table, 0)
	for _, schema := range w.filterSchemas(schemaNames) {
		queues = append(queues, schema.filterTables(tableNames))
	}
	var result []*Table
	if !stratify {
		for _, queue := range queues {
			result = append(result, queue...)
		}
		return result
	}
	for {
		drained := true
		for i := range queues {
			if len(queues[i]) == 0 {
				continue
			}
			result = append(result, queues[i][0])
			queues[i] = queues[i][1:]
			drained = false
		}
		if drained {
			return result
		}
	}
}

func lowerSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[strings.ToLower(name)] = struct{}{}
	}
	return set
}
