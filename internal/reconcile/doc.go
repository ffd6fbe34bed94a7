// Package reconcile drives the discovery and refresh loop.
//
// A cycle has two phases. Discovery searches the mailbox, extracts and
// classifies tracking numbers, and upserts them into the parcel store.
// Refresh selects stale parcels and fetches live status through the
// tracker registry, one worker per courier so a slow API only delays its
// own parcels. A failed mailbox search aborts the cycle before any store
// mutation; failures during refresh are recorded per parcel and never
// abort the cycle.
package reconcile
