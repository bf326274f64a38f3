package catalog

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/stagelift/stagelift/pkg/config"
)

// Reserved keys inside a table mapping. Everything else is a column entry.
const (
	keyDescription = "_description"
	keyMeta        = "_meta"
	keyMetaAlias   = "meta"
	keyColumns     = "columns"
)

// Load parses a catalog document into a warehouse graph.
func Load(data []byte) (*Warehouse, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogParse, err)
	}
	warehouse := NewWarehouse()
	if len(doc.Content) == 0 {
		return warehouse, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: document root must be a mapping", ErrCatalogParse)
	}
	for i := 0; i < len(root.Content); i += 2 {
		schema, err := loadSchema(warehouse, root.Content[i].Value, root.Content[i+1])
		if err != nil {
			return nil, err
		}
		warehouse.AddSchema(schema)
	}
	return warehouse, nil
}

// LoadFile loads the catalog document at path. An empty path falls back to
// the TABLES_YAML_PATH environment variable.
func LoadFile(path string) (*Warehouse, error) {
	if path == "" {
		path = config.TablesPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog document: %w", err)
	}
	warehouse, err := Load(data)
	if err != nil {
		return nil, err
	}
	warehouse.SourceFile = path
	return warehouse, nil
}

func loadSchema(warehouse *Warehouse, name string, node *yaml.Node) (*Schema, error) {
	schema := NewSchema(warehouse, name)
	if node.Kind == 0 || (node.Kind == yaml.ScalarNode && node.Tag == "!!null") {
		return schema, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: schema %q must be a mapping", ErrCatalogParse, name)
	}
	for i := 0; i < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		switch key {
		case keyDescription:
			schema.Description = value.Value
		case keyMeta:
			if err := value.Decode(&schema.Meta); err != nil {
				return nil, fmt.Errorf("%w: schema %q meta: %v", ErrCatalogParse, name, err)
			}
		default:
			table, err := loadTable(schema, key, value)
			if err != nil {
				return nil, err
			}
			schema.AddTable(table)
		}
	}
	return schema, nil
}

func loadTable(schema *Schema, name string, node *yaml.Node) (*Table, error) {
	table := NewTable(schema, name)
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return table, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: table %q must be a mapping", ErrCatalogParse, name)
	}
	uri := schema.Name + "." + name
	for i := 0; i < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		switch key {
		case keyDescription:
			table.Description = value.Value
		case keyMeta, keyMetaAlias:
			meta, err := loadTableMeta(uri, value)
			if err != nil {
				return nil, err
			}
			table.Meta = meta
		case keyColumns:
			if value.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("%w: table %q columns must be a mapping", ErrCatalogParse, uri)
			}
			for j := 0; j < len(value.Content); j += 2 {
				column, err := loadColumn(uri, value.Content[j].Value, value.Content[j+1])
				if err != nil {
					return nil, err
				}
				table.AddColumn(column)
			}
		default:
			column, err := loadColumn(uri, key, value)
			if err != nil {
				return nil, err
			}
			table.AddColumn(column)
		}
	}
	return table, nil
}

func loadTableMeta(uri string, node *yaml.Node) (TableMeta, error) {
	meta := DefaultTableMeta()
	if node.Kind != yaml.MappingNode {
		return meta, fmt.Errorf("%w: table %q meta must be a mapping", ErrCatalogParse, uri)
	}
	for i := 0; i < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		var err error
		switch key {
		case "ignore":
			meta.Ignore, err = boolValue(value)
		case "batches":
			meta.Batches, err = intValue(value)
		case "total_rows":
			meta.TotalRows, err = intValue(value)
		case "file_format":
			meta.FileFormat = value.Value
		case "primary_key":
			meta.PrimaryKey = value.Value
		case "timestamp_key":
			meta.TimestampKey = value.Value
		case "batch_key":
			meta.BatchKey = value.Value
		case "source":
			meta.Source = value.Value
		case "where_clause":
			meta.WhereClause = value.Value
		case "look_back_days":
			meta.LookBackDays, err = intValue(value)
		case "timestamp_field":
			meta.TimestampField = value.Value
		case "timezone":
			meta.Timezone = value.Value
		case "truncate":
			var truncate bool
			truncate, err = boolValue(value)
			meta.Truncate = &truncate
		case "stage_file_format":
			meta.StageFileFormat = value.Value
		default:
			return meta, fmt.Errorf("%w: table %q has unknown option %q", ErrCatalogParse, uri, key)
		}
		if err != nil {
			return meta, fmt.Errorf("%w: table %q option %q: %v", ErrCatalogParse, uri, key, err)
		}
	}
	return meta, nil
}

func loadColumn(uri, name string, node *yaml.Node) (*Column, error) {
	if node.Kind == yaml.ScalarNode {
		return NewColumn(name, node.Value), nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: column %q of table %q must be a dtype or mapping", ErrCatalogParse, name, uri)
	}
	column := &Column{Name: name}
	for i := 0; i < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		switch key {
		case "dtype":
			column.Dtype = value.Value
		case "description":
			column.Description = value.Value
		case "source":
			column.Source = value.Value
		case "meta":
			if err := value.Decode(&column.Meta); err != nil {
				return nil, fmt.Errorf("%w: column %q of table %q meta: %v", ErrCatalogParse, name, uri, err)
			}
		case "tests":
			if err := value.Decode(&column.Tests); err != nil {
				return nil, fmt.Errorf("%w: column %q of table %q tests: %v", ErrCatalogParse, name, uri, err)
			}
		default:
			return nil, fmt.Errorf("%w: column %q of table %q has unknown field %q", ErrCatalogParse, name, uri, key)
		}
	}
	if column.Dtype == "" {
		return nil, fmt.Errorf("%w: column %q of table %q has no dtype", ErrCatalogParse, name, uri)
	}
	return NewColumn(column.Name, column.Dtype).withDetails(column), nil
}

func (c *Column) withDetails(src *Column) *Column {
	c.Description = src.Description
	c.Source = src.Source
	c.Meta = src.Meta
	c.Tests = src.Tests
	return c
}

func boolValue(node *yaml.Node) (bool, error) {
	return strconv.ParseBool(node.Value)
}

func intValue(node *yaml.Node) (int, error) {
	return strconv.Atoi(node.Value)
}

// Dump serializes the warehouse back into its declarative document,
// eliding defaults and preserving declaration order.
func (w *Warehouse) Dump() ([]byte, error) {
	root := mappingNode()
	for _, schema := range w.schemas {
		appendPair(root, schema.Name, schema.dumpNode())
	}
	return yaml.Marshal(root)
}

// DumpFile writes the document to path, defaulting to the file the
// warehouse was loaded from.
func (w *Warehouse) DumpFile(path string) error {
	if path == "" {
		path = w.SourceFile
	}
	if path == "" {
		return fmt.Errorf("no target path for catalog document")
	}
	data, err := w.Dump()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (s *Schema) dumpNode() *yaml.Node {
	node := mappingNode()
	if s.Description != "" {
		appendPair(node, keyDescription, scalarNode(s.Description))
	}
	if len(s.Meta) > 0 {
		appendPair(node, keyMeta, encodeNode(s.Meta))
	}
	for _, table := range s.tables {
		appendPair(node, table.Name, table.dumpNode())
	}
	return node
}

func (t *Table) dumpNode() *yaml.Node {
	node := mappingNode()
	if t.Description != "" {
		appendPair(node, keyDescription, scalarNode(t.Description))
	}
	if meta := t.Meta.dumpNode(); len(meta.Content) > 0 {
		appendPair(node, keyMeta, meta)
	}
	for _, column := range t.columns {
		appendPair(node, column.Name, column.dumpNode())
	}
	return node
}

func (m TableMeta) dumpNode() *yaml.Node {
	defaults := DefaultTableMeta()
	node := mappingNode()
	if m.Ignore {
		appendPair(node, "ignore", boolNode(m.Ignore))
	}
	if m.Batches != defaults.Batches {
		appendPair(node, "batches", intNode(m.Batches))
	}
	if m.TotalRows != 0 {
		appendPair(node, "total_rows", intNode(m.TotalRows))
	}
	if m.FileFormat != defaults.FileFormat {
		appendPair(node, "file_format", scalarNode(m.FileFormat))
	}
	if m.PrimaryKey != "" {
		appendPair(node, "primary_key", scalarNode(m.PrimaryKey))
	}
	if m.TimestampKey != "" {
		appendPair(node, "timestamp_key", scalarNode(m.TimestampKey))
	}
	if m.BatchKey != "" {
		appendPair(node, "batch_key", scalarNode(m.BatchKey))
	}
	if m.Source != "" {
		appendPair(node, "source", scalarNode(m.Source))
	}
	if m.WhereClause != "" {
		appendPair(node, "where_clause", scalarNode(m.WhereClause))
	}
	if m.LookBackDays != 0 {
		appendPair(node, "look_back_days", intNode(m.LookBackDays))
	}
	if m.TimestampField != "" {
		appendPair(node, "timestamp_field", scalarNode(m.TimestampField))
	}
	if m.Timezone != defaults.Timezone && m.Timezone != "" {
		appendPair(node, "timezone", scalarNode(m.Timezone))
	}
	if m.Truncate != nil {
		appendPair(node, "truncate", boolNode(*m.Truncate))
	}
	if m.StageFileFormat != "" {
		appendPair(node, "stage_file_format", scalarNode(m.StageFileFormat))
	}
	return node
}

func (c *Column) dumpNode() *yaml.Node {
	if c.Description == "" && c.Source == "" && len(c.Meta) == 0 && len(c.Tests) == 0 {
		return scalarNode(c.Dtype)
	}
	node := mappingNode()
	appendPair(node, "dtype", scalarNode(c.Dtype))
	if c.Description != "" {
		appendPair(node, "description", scalarNode(c.Description))
	}
	if c.Source != "" {
		appendPair(node, "source", scalarNode(c.Source))
	}
	if len(c.Meta) > 0 {
		appendPair(node, "meta", encodeNode(c.Meta))
	}
	if len(c.Tests) > 0 {
		appendPair(node, "tests", encodeNode(c.Tests))
	}
	return node
}

func mappingNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func scalarNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

func intNode(value int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(value)}
}

func boolNode(value bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(value)}
}

func encodeNode(value any) *yaml.Node {
	node := &yaml.Node{}
	// Encode cannot fail for the plain maps and slices the catalog holds.
	_ = node.Encode(value)
	return node
}

func appendPair(mapping *yaml.Node, key string, value *yaml.Node) {
	mapping.Content = append(mapping.Content, scalarNode(key), value)
}
