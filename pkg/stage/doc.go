// Package stage implements the staging pipeline between extractors and the
// warehouse: encoding row streams into size-bounded compressed files and
// storing them as partitioned objects in a bucket.
//
// Staged objects live under <schema>/<table>/ with file names
// <table>_b<BB>_f<FF>.<suffix>, so extract batches of one table never
// collide and a clean pass is a single prefix listing.
package stage
