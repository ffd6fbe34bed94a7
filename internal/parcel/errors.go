package parcel

import "errors"

// ErrNotFound indicates the tracking number has no stored parcel.
var ErrNotFound = errors.New("parcel not found")

// ErrBackwardTransition indicates a provider reported a status that would
// move a parcel backward (for example delivered -> in_transit). The fetch
// itself still counts as a success; the stored status is left untouched and
// callers log the anomaly.
var ErrBackwardTransition = errors.New("backward status transition rejected")
