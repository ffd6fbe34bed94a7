// Package tracker fetches live parcel status from courier APIs.
//
// Each supported courier gets an HTTP provider built from the configured
// API key; couriers without a key, and unknown couriers, get a fallback
// provider that reports the parcel as unsupported without any network
// traffic. The registry wraps every fetch in a bounded retry loop with
// exponential backoff and jitter, and trips a per-courier circuit after a
// run of consecutive failures so one dead API cannot stall a cycle.
package tracker
