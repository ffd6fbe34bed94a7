// Package parcel persists tracked parcels in SQLite and owns the dedup,
// merge, and status-transition semantics.
//
// Parcels are keyed by normalized tracking number. Repeated observations of
// the same number merge into one record: source message IDs accumulate with
// set semantics so reprocessing an email is a no-op, and the stored
// classification is only replaced by one that strictly outranks it. Status
// moves forward only (new -> in_transit -> out_for_delivery -> delivered);
// exception and unknown are reachable from any non-terminal state and are
// recoverable. Every mutation commits in its own transaction before the
// call returns.
//
// Treat this package as the single source of truth for parcel semantics;
// schema changes bump schemaVersion in schema.go.
package parcel
