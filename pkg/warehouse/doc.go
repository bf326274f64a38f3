// Package warehouse generates and executes the SQL that materializes
// staged files into target tables.
//
// The load protocol is a fixed statement sequence per table shape:
// overwrite (truncate, copy, stamp) for tables without merge keys, upsert
// (stage table, copy, delete-using, insert) for tables with a primary or
// timestamp key. Statements run in order on a single cursor per table.
package warehouse
