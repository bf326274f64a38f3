package warehouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagelift/stagelift/pkg/catalog"
)

const loadTestDoc = `schema0:
  table_csv_overwrite:
    column0: varchar
    column1: datetime
  table_csv_upsert:
    _meta:
      primary_key: column0
    column0: varchar
    column1: datetime
  table_range_upsert:
    _meta:
      timestamp_key: column1
    column0: varchar
    column1: datetime
  table_parquet:
    _meta:
      file_format: parquet
    column0: varchar
    column1: datetime
`

func loadTestCatalog(t *testing.T) *catalog.Warehouse {
	t.Helper()
	t.Setenv("APP_ENV", "dev")
	warehouse, err := catalog.Load([]byte(loadTestDoc))
	require.NoError(t, err)
	return warehouse
}

func testBuilder(t *testing.T, warehouse *catalog.Warehouse, tableName string) *Builder {
	t.Helper()
	table, err := warehouse.Table("schema0", tableName)
	require.NoError(t, err)
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return &Builder{
		Table: table,
		Now:   func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, berlin) },
	}
}

func TestOverwriteStatements(t *testing.T) {
	warehouse := loadTestCatalog(t)
	builder := testBuilder(t, warehouse, "table_csv_overwrite")

	sql, err := builder.LoadStatementsString(nil)
	require.NoError(t, err)
	assert.Equal(t, `TRUNCATE TABLE IF EXISTS sources_dev.schema0.table_csv_overwrite;
COPY INTO sources_dev.schema0.table_csv_overwrite (column0, column1) FROM @sources_dev.public.stage/schema0/table_csv_overwrite/ FILE_FORMAT=( TYPE=CSV FIELD_DELIMITER=';' SKIP_BLANK_LINES=TRUE TRIM_SPACE=TRUE FIELD_OPTIONALLY_ENCLOSED_BY='"' );
UPDATE sources_dev.schema0.table_csv_overwrite SET load_date='2024-01-01 00:00:00'`, sql)
}

func TestUpsertStatements(t *testing.T) {
	warehouse := loadTestCatalog(t)
	builder := testBuilder(t, warehouse, "table_csv_upsert")

	statements, err := builder.LoadStatements(nil)
	require.NoError(t, err)
	require.Len(t, statements, 6)

	assert.Equal(t, []Category{
		CategoryDrop, CategoryCreate, CategoryCopy, CategoryUpdate, CategoryDelete, CategoryInsert,
	}, categories(statements))

	assert.Equal(t, "DROP TABLE IF EXISTS sources_dev.schema0.table_csv_upsert_stage", statements[0].SQL)
	assert.Equal(t, "CREATE TABLE sources_dev.schema0.table_csv_upsert_stage LIKE sources_dev.schema0.table_csv_upsert", statements[1].SQL)
	assert.Equal(t, `COPY INTO sources_dev.schema0.table_csv_upsert_stage (column0, column1) FROM @sources_dev.public.stage/schema0/table_csv_upsert/ FILE_FORMAT=( TYPE=CSV FIELD_DELIMITER=';' SKIP_BLANK_LINES=TRUE TRIM_SPACE=TRUE FIELD_OPTIONALLY_ENCLOSED_BY='"' )`, statements[2].SQL)
	assert.Equal(t, "UPDATE sources_dev.schema0.table_csv_upsert_stage SET load_date='2024-01-01 00:00:00'", statements[3].SQL)
	assert.Equal(t, "DELETE FROM sources_dev.schema0.table_csv_upsert USING sources_dev.schema0.table_csv_upsert_stage WHERE table_csv_upsert.column0 = table_csv_upsert_stage.column0", statements[4].SQL)
	assert.Equal(t, "INSERT INTO sources_dev.schema0.table_csv_upsert SELECT * FROM sources_dev.schema0.table_csv_upsert_stage", statements[5].SQL)
}

func categories(statements []Statement) []Category {
	out := make([]Category, len(statements))
	for i, stmt := range statements {
		out[i] = stmt.Category
	}
	return out
}

func TestCompositePrimaryKey(t *testing.T) {
	warehouse := loadTestCatalog(t)
	table, err := warehouse.Table("schema0", "table_csv_upsert")
	require.NoError(t, err)
	table.Meta.PrimaryKey = "column0;column1"

	builder := testBuilder(t, warehouse, "table_csv_upsert")
	deleteStmt, err := builder.DeleteStatement()
	require.NoError(t, err)
	assert.Contains(t, deleteStmt, "table_csv_upsert.column0 = table_csv_upsert_stage.column0 AND table_csv_upsert.column1 = table_csv_upsert_stage.column1")
}

func TestRangeUpsertDelete(t *testing.T) {
	warehouse := loadTestCatalog(t)
	builder := testBuilder(t, warehouse, "table_range_upsert")

	deleteStmt, err := builder.DeleteStatement()
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM sources_dev.schema0.table_range_upsert "+
		"USING (SELECT MIN(column1) AS min_ts, MAX(column1) AS max_ts FROM sources_dev.schema0.table_range_upsert_stage) AS range "+
		"WHERE (column1 BETWEEN range.min_ts AND range.max_ts) OR column1 IS NULL", deleteStmt)
}

func TestTruncateOverride(t *testing.T) {
	warehouse := loadTestCatalog(t)
	builder := testBuilder(t, warehouse, "table_csv_upsert")

	truncate := true
	statements, err := builder.LoadStatements(&truncate)
	require.NoError(t, err)
	assert.Equal(t, []Category{CategoryTruncate, CategoryCopy, CategoryUpdate}, categories(statements),
		"truncate override forces overwrite on a keyed table")

	truncate = false
	statements, err = builder.LoadStatements(&truncate)
	require.NoError(t, err)
	assert.Len(t, statements, 6, "explicit false keeps the upsert")
}

func TestLoadPolicyUnresolved(t *testing.T) {
	warehouse := loadTestCatalog(t)
	builder := testBuilder(t, warehouse, "table_csv_overwrite")
	_, err := builder.DeleteStatement()
	assert.ErrorIs(t, err, ErrLoadPolicyUnresolved)
}

func TestInvalidSuffix(t *testing.T) {
	warehouse := loadTestCatalog(t)
	builder := testBuilder(t, warehouse, "table_csv_overwrite")

	_, err := builder.CopyStatement("_tmp")
	assert.ErrorIs(t, err, ErrInvalidSuffix)
	_, err = builder.UpdateLoadDateStatement("_tmp")
	assert.ErrorIs(t, err, ErrInvalidSuffix)

	_, err = builder.CopyStatement(StageSuffix)
	assert.NoError(t, err)
}

func TestParquetCopyStatement(t *testing.T) {
	warehouse := loadTestCatalog(t)
	builder := testBuilder(t, warehouse, "table_parquet")

	copyStmt, err := builder.CopyStatement("")
	require.NoError(t, err)
	assert.Equal(t, "COPY INTO sources_dev.schema0.table_parquet (column0, column1) FROM "+
		"( SELECT $1:column0::varchar, TO_TIMESTAMP_NTZ($1:column1::int, 6) FROM @sources_dev.public.stage/schema0/table_parquet/ ) "+
		"FILE_FORMAT=( TYPE=PARQUET )", copyStmt)
}

func TestNamedStageFileFormat(t *testing.T) {
	warehouse := loadTestCatalog(t)
	table, err := warehouse.Table("schema0", "table_csv_overwrite")
	require.NoError(t, err)
	table.Meta.StageFileFormat = "my_format"
	defer func() { table.Meta.StageFileFormat = "" }()

	builder := testBuilder(t, warehouse, "table_csv_overwrite")
	assert.Equal(t, "FORMAT_NAME='sources_dev.public.my_format'", builder.FileFormatClause())
}

func TestCreateTableStatement(t *testing.T) {
	warehouse := loadTestCatalog(t)
	builder := testBuilder(t, warehouse, "table_csv_overwrite")

	assert.Equal(t, `DROP TABLE IF EXISTS sources_dev.schema0.table_csv_overwrite;
CREATE TABLE sources_dev.schema0.table_csv_overwrite (
    column0 VARCHAR,
    column1 DATETIME,
    load_date DATETIME
)`, builder.CreateTableStatement())
}
