// Package materialize runs the Aggregator over every subset of a catalog
// and publishes one artifact per subset.
//
// A run is bound to one input snapshot. Subsets are independent: they
// run in parallel on a bounded worker pool, and one subset's failure
// never stops the others. The Summary reports each subset's outcome.
//
// Run history is written when the store implements store.RunRecorder.
// Schedule re-runs periodically and skips snapshots already materialized
// by a successful run.
package materialize
