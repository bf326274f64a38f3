// Package catalog models the warehouse as an ordered graph of schemas,
// tables and columns, loaded from and dumped to a declarative YAML document.
//
// Schemas, tables and columns keep their document order; iteration order
// defines stage column order and the COPY column list. Parent references
// (table to schema, schema to warehouse) are navigational only and never
// serialized.
package catalog
