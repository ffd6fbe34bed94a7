// Package extract scans email text for shipment-identifier substrings.
//
// The pattern table is a priority-ordered list; every pattern runs against
// the full text and each non-overlapping match becomes a candidate, so the
// same substring may be emitted more than once under different patterns.
// Ranking between competing observations is resolved downstream by the
// classifier and the parcel store.
package extract
