package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"parcelwatch/internal/parcel"
)

// Outcome is one successful status observation from a courier API.
type Outcome struct {
	Status parcel.Status
	ETA    *time.Time
}

// Provider fetches live status for a single courier's tracking numbers.
type Provider interface {
	Courier() parcel.Courier
	Fetch(ctx context.Context, trackingNumber string) (Outcome, error)
}

// fallbackProvider answers for couriers with no usable API: unknown
// couriers and couriers missing an API key. It performs no I/O.
type fallbackProvider struct {
	courier parcel.Courier
}

func (p *fallbackProvider) Courier() parcel.Courier {
	return p.courier
}

func (p *fallbackProvider) Fetch(_ context.Context, trackingNumber string) (Outcome, error) {
	return Outcome{}, &ProviderError{
		Reason: ReasonUnsupported,
		Err:    fmt.Errorf("no status provider for courier %s (tracking %s)", p.courier, trackingNumber),
	}
}

// normalizeStatus maps courier API status strings onto the internal status
// set. Unrecognized strings degrade to unknown rather than failing the
// fetch.
func normalizeStatus(raw string) parcel.Status {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(raw, " ", "_"))) {
	case "label_created", "pre_transit", "accepted", "new":
		return parcel.StatusNew
	case "in_transit", "transit", "shipped", "arrived_at_facility", "departed_facility", "moving":
		return parcel.StatusInTransit
	case "out_for_delivery", "on_vehicle", "with_courier":
		return parcel.StatusOutForDelivery
	case "delivered", "delivered_to_recipient":
		return parcel.StatusDelivered
	case "exception", "delay", "delayed", "failure", "return_to_sender", "held":
		return parcel.StatusException
	default:
		return parcel.StatusUnknown
	}
}
