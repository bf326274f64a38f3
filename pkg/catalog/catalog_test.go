package catalog

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDocument = `crm:
  _description: customer system
  accounts:
    _meta:
      primary_key: id
      timestamp_field: updated_at
    id: int
    name: varchar
    updated_at: datetime
  contacts:
    _meta:
      ignore: true
    id: int
    email:
      dtype: varchar
      description: contact email
      source: EmailAddress
erp:
  orders:
    _meta:
      batches: 3
      file_format: parquet
    order_id: int
    amount: double
    created: datetime
`

func TestLoadDocument(t *testing.T) {
	warehouse, err := Load([]byte(sampleDocument))
	require.NoError(t, err)

	require.Len(t, warehouse.Schemas(), 2)
	crm, err := warehouse.Schema("crm")
	require.NoError(t, err)
	assert.Equal(t, "customer system", crm.Description)

	accounts, err := crm.Table("accounts")
	require.NoError(t, err)
	assert.Equal(t, "id", accounts.Meta.PrimaryKey)
	assert.Equal(t, "updated_at", accounts.Meta.TimestampField)
	assert.Equal(t, []string{"id", "name", "updated_at"}, accounts.ColumnNames())

	contacts, err := crm.Table("contacts")
	require.NoError(t, err)
	assert.True(t, contacts.Meta.Ignore)
	email := contacts.Column("email")
	require.NotNil(t, email)
	assert.Equal(t, "varchar", email.Dtype)
	assert.Equal(t, "EmailAddress", email.Source)
	assert.Equal(t, "EmailAddress", email.SourceName())

	orders, err := warehouse.Table("erp", "orders")
	require.NoError(t, err)
	assert.Equal(t, 3, orders.Meta.Batches)
	assert.Equal(t, FileFormatParquet, orders.Meta.FileFormat)
}

func TestRoundTrip(t *testing.T) {
	warehouse, err := Load([]byte(sampleDocument))
	require.NoError(t, err)

	dumped, err := warehouse.Dump()
	require.NoError(t, err)

	reloaded, err := Load(dumped)
	require.NoError(t, err)
	redumped, err := reloaded.Dump()
	require.NoError(t, err)

	// A dumped document is a fixed point of load/dump.
	assert.Equal(t, string(dumped), string(redumped))

	// Structure survives the round trip.
	require.Len(t, reloaded.Schemas(), 2)
	accounts, err := reloaded.Table("crm", "accounts")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "updated_at"}, accounts.ColumnNames())
	assert.Equal(t, "id", accounts.Meta.PrimaryKey)
}

func TestDumpElidesDefaults(t *testing.T) {
	warehouse, err := Load([]byte("s0:\n  t0:\n    c0: varchar\n"))
	require.NoError(t, err)
	dumped, err := warehouse.Dump()
	require.NoError(t, err)
	assert.NotContains(t, string(dumped), "_meta")
	assert.NotContains(t, string(dumped), "dtype")
	assert.Contains(t, string(dumped), "c0: varchar")
}

func TestColumnOrderPreserved(t *testing.T) {
	var names []string
	for i := 0; i < 20; i++ {
		names = append(names, fmt.Sprintf("col%02d", i))
	}
	var doc strings.Builder
	doc.WriteString("s0:\n  t0:\n")
	for _, name := range names {
		doc.WriteString("    " + name + ": varchar\n")
	}
	warehouse, err := Load([]byte(doc.String()))
	require.NoError(t, err)
	table, err := warehouse.Table("s0", "t0")
	require.NoError(t, err)
	assert.Equal(t, names, table.ColumnNames())

	dumped, err := warehouse.Dump()
	require.NoError(t, err)
	reloaded, err := Load(dumped)
	require.NoError(t, err)
	table, err = reloaded.Table("s0", "t0")
	require.NoError(t, err)
	assert.Equal(t, names, table.ColumnNames())
}

func TestLoadUnknownMetaOption(t *testing.T) {
	_, err := Load([]byte("s0:\n  t0:\n    _meta:\n      no_such_option: 1\n    c0: varchar\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCatalogParse)
}

func TestLookupErrors(t *testing.T) {
	warehouse, err := Load([]byte(sampleDocument))
	require.NoError(t, err)

	_, err = warehouse.Schema("nope")
	assert.ErrorIs(t, err, ErrSchemaNotFound)

	_, err = warehouse.Table("crm", "nope")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestAddDrop(t *testing.T) {
	warehouse := NewWarehouse()
	schema := NewSchema(warehouse, "s0")
	warehouse.AddSchema(schema)
	table := NewTable(schema, "t0")
	schema.AddTable(table)
	table.AddColumn(NewColumn("c0", "VARCHAR"))

	column := table.Column("c0")
	require.NotNil(t, column)
	assert.Equal(t, "varchar", column.Dtype, "dtype is normalized to lowercase")

	table.DropColumn("c0")
	assert.Nil(t, table.Column("c0"))

	schema.DropTable("t0")
	_, err := schema.Table("t0")
	assert.ErrorIs(t, err, ErrTableNotFound)

	warehouse.DropSchema("s0")
	_, err = warehouse.Schema("s0")
	assert.ErrorIs(t, err, ErrSchemaNotFound)
}

func TestTableURI(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	warehouse, err := Load([]byte(sampleDocument))
	require.NoError(t, err)
	table, err := warehouse.Table("crm", "accounts")
	require.NoError(t, err)
	assert.Equal(t, "sources_dev.crm.accounts", table.URI())

	t.Setenv("APP_ENV", "prod")
	assert.Equal(t, "sources.crm.accounts", table.URI())
}

// gridWarehouse builds schemas schema0..schemaN-1 with tables
// table0..tableM-1 each.
func gridWarehouse(t *testing.T, schemas, tables int) *Warehouse {
	t.Helper()
	var doc strings.Builder
	for s := 0; s < schemas; s++ {
		doc.WriteString(fmt.Sprintf("schema%d:\n", s))
		for n := 0; n < tables; n++ {
			doc.WriteString(fmt.Sprintf("  table%d:\n    column0: varchar\n", n))
		}
	}
	warehouse, err := Load([]byte(doc.String()))
	require.NoError(t, err)
	return warehouse
}

func TestFilter(t *testing.T) {
	warehouse := gridWarehouse(t, 3, 3)

	tests := []struct {
		name        string
		schemaNames []string
		tableNames  []string
		expected    int
	}{
		{name: "all", schemaNames: nil, tableNames: nil, expected: 9},
		{name: "empty schemas", schemaNames: []string{}, tableNames: nil, expected: 0},
		{name: "empty tables", schemaNames: nil, tableNames: []string{}, expected: 0},
		{name: "one schema", schemaNames: []string{"schema1"}, tableNames: nil, expected: 3},
		{name: "one table everywhere", schemaNames: nil, tableNames: []string{"table2"}, expected: 3},
		{name: "uppercase names match", schemaNames: []string{"SCHEMA1"}, tableNames: []string{"TABLE0"}, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, warehouse.Filter(tt.schemaNames, tt.tableNames, false), tt.expected)
		})
	}
}

func TestFilterDeterminism(t *testing.T) {
	warehouse := gridWarehouse(t, 4, 4)
	first := warehouse.Filter(nil, nil, false)
	second := warehouse.Filter(nil, nil, false)
	assert.Equal(t, first, second)
}

func TestFilterIgnore(t *testing.T) {
	warehouse, err := Load([]byte(`s0:
  t0:
    _meta:
      ignore: true
    c0: varchar
  t1:
    c0: varchar
`))
	require.NoError(t, err)

	// Default schedules exclude ignored tables.
	tables := warehouse.Filter(nil, nil, false)
	require.Len(t, tables, 1)
	assert.Equal(t, "t1", tables[0].Name)

	// Explicit table names override the ignore flag.
	tables = warehouse.Filter(nil, []string{"t0"}, false)
	require.Len(t, tables, 1)
	assert.Equal(t, "t0", tables[0].Name)
}

func TestFilterStratify(t *testing.T) {
	warehouse := gridWarehouse(t, 10, 10)

	tables := warehouse.Filter(
		[]string{"schema1", "schema3", "schema5"},
		[]string{"table1", "table3", "table5"},
		true,
	)

	var got [][2]string
	for _, table := range tables {
		got = append(got, [2]string{table.SchemaName(), table.Name})
	}
	assert.Equal(t, [][2]string{
		{"schema1", "table1"}, {"schema3", "table1"}, {"schema5", "table1"},
		{"schema1", "table3"}, {"schema3", "table3"}, {"schema5", "table3"},
		{"schema1", "table5"}, {"schema3", "table5"}, {"schema5", "table5"},
	}, got)
}

func TestStratifyInvariance(t *testing.T) {
	warehouse := gridWarehouse(t, 5, 7)
	plain := warehouse.Filter(nil, nil, false)
	stratified := warehouse.Filter(nil, nil, true)
	assert.ElementsMatch(t, plain, stratified)
}
