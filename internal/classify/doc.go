// Package classify assigns a courier and retailer to extracted tracking
// number candidates.
//
// Courier resolution order: the matched pattern's intrinsic hint, then the
// sender-domain table, else unknown. The confidence is the pattern's
// configured value, boosted by a fixed increment when the sender domain
// corroborates the hint. Company resolution is independent and purely
// domain-driven. Classification is a pure mapping over static tables;
// competing classifications for the same tracking number are ranked by the
// parcel store.
package classify
