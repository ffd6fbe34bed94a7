package parcel

import (
	"strings"
	"time"
)

// Courier identifies a shipping carrier.
type Courier string

const (
	CourierUPS     Courier = "ups"
	CourierFedEx   Courier = "fedex"
	CourierUSPS    Courier = "usps"
	CourierDHL     Courier = "dhl"
	CourierUnknown Courier = "unknown"
)

var allCouriers = []Courier{CourierUPS, CourierFedEx, CourierUSPS, CourierDHL, CourierUnknown}

// AllCouriers returns the known courier tags, fallback last.
func AllCouriers() []Courier {
	cp := make([]Courier, len(allCouriers))
	copy(cp, allCouriers)
	return cp
}

// ParseCourier converts a string into a known Courier.
func ParseCourier(value string) (Courier, bool) {
	normalized := Courier(strings.ToLower(strings.TrimSpace(value)))
	for _, courier := range allCouriers {
		if courier == normalized {
			return courier, true
		}
	}
	return CourierUnknown, false
}

// Status represents the delivery lifecycle of a parcel.
type Status string

const (
	StatusNew            Status = "new"
	StatusInTransit      Status = "in_transit"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusException      Status = "exception"
	StatusUnknown        Status = "unknown"
)

var allStatuses = []Status{
	StatusNew,
	StatusInTransit,
	StatusOutForDelivery,
	StatusDelivered,
	StatusException,
	StatusUnknown,
}

// forwardRank orders the physical delivery progression. Exception and
// unknown sit outside the ordering.
var forwardRank = map[Status]int{
	StatusNew:            0,
	StatusInTransit:      1,
	StatusOutForDelivery: 2,
	StatusDelivered:      3,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether a status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered
}

// CanTransition reports whether a provider-reported status may replace the
// stored one. Delivery progresses forward only; exception and unknown are
// reachable from any non-terminal state and may later recover to a forward
// status.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	if to == StatusException || to == StatusUnknown {
		return true
	}
	fromRank, fromForward := forwardRank[from]
	toRank, toForward := forwardRank[to]
	if !toForward {
		return false
	}
	if !fromForward {
		// Recovering from exception/unknown to any forward status.
		return true
	}
	return toRank >= fromRank
}

// Classification is the courier/company assignment produced for one
// observation of a tracking number.
type Classification struct {
	TrackingNumber string
	Courier        Courier
	Company        string
	Confidence     int
	ObservedAt     time.Time
	MessageID      string
}

// Outranks reports whether c should replace stored. Higher confidence wins;
// equal confidence keeps the earliest observation, tie-broken by message ID
// so batch ordering cannot change the outcome.
func (c Classification) Outranks(stored Classification) bool {
	if c.Confidence != stored.Confidence {
		return c.Confidence > stored.Confidence
	}
	if !c.ObservedAt.Equal(stored.ObservedAt) {
		return c.ObservedAt.Before(stored.ObservedAt)
	}
	return c.MessageID < stored.MessageID
}

// Parcel is the durable record for one tracking number.
type Parcel struct {
	TrackingNumber      string
	Courier             Courier
	Company             string
	Status              Status
	ETA                 *time.Time
	Confidence          int
	ClassifiedAt        time.Time
	ClassifiedMessageID string
	LastCheckedAt       *time.Time
	LastSuccessAt       *time.Time
	ConsecutiveFailures int
	FirstSeenAt         time.Time
	UpdatedAt           time.Time
	SourceMessageIDs    []string
}

// Classification returns the stored classification for outranking checks.
func (p *Parcel) Classification() Classification {
	return Classification{
		TrackingNumber: p.TrackingNumber,
		Courier:        p.Courier,
		Company:        p.Company,
		Confidence:     p.Confidence,
		ObservedAt:     p.ClassifiedAt,
		MessageID:      p.ClassifiedMessageID,
	}
}

// HasMessage reports whether the parcel already recorded a source message.
func (p *Parcel) HasMessage(messageID string) bool {
	for _, id := range p.SourceMessageIDs {
		if id == messageID {
			return true
		}
	}
	return false
}

// IsStale reports whether the last status fetch failed more recently than
// it succeeded.
func (p *Parcel) IsStale() bool {
	if p.LastCheckedAt == nil || p.LastSuccessAt == nil {
		return p.LastCheckedAt != nil && p.LastSuccessAt == nil
	}
	return p.LastSuccessAt.Before(*p.LastCheckedAt)
}

// NormalizeTrackingNumber strips whitespace and uppercases an identifier.
func NormalizeTrackingNumber(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}
