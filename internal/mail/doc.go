// Package mail reads shipping-related email through the Gmail API.
//
// Access is read-only and paced with a client-side rate limiter so a large
// backlog search cannot burn through the per-user API quota. The Source
// interface is the seam the reconciliation engine consumes; tests swap in
// an in-memory implementation.
package mail
