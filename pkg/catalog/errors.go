package catalog

import "errors"

var (
	// ErrCatalogParse indicates a malformed catalog document or an unknown
	// per-table option key.
	ErrCatalogParse = errors.New("catalog parse error")

	// ErrSchemaNotFound indicates a lookup for a schema the catalog does not hold.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrTableNotFound indicates a lookup for a table the schema does not hold.
	ErrTableNotFound = errors.New("table not found")
)
