package extract

import (
	"regexp"
	"time"

	"parcelwatch/internal/parcel"
)

// Pattern matches one class of tracking number. Hint may be
// parcel.CourierUnknown for ambiguous formats; the classifier then falls
// back to the sender domain.
type Pattern struct {
	ID         string
	Regexp     *regexp.Regexp
	Hint       parcel.Courier
	Confidence int
}

// Source carries the message context attached to every candidate.
type Source struct {
	MessageID    string
	SenderDomain string
	Subject      string
	ObservedAt   time.Time
}

// Candidate is one possible tracking number found in a message. Transient;
// consumed immediately by the classifier and never persisted.
type Candidate struct {
	Raw          string
	PatternID    string
	Hint         parcel.Courier
	Confidence   int
	MessageID    string
	SenderDomain string
	Subject      string
	ObservedAt   time.Time
}

// DefaultPatterns returns the built-in pattern table, highest-priority
// first. Formats mirror the carriers' published tracking number shapes:
// UPS 1Z, USPS international (two letters, nine digits, two letters), USPS
// IMpb 22-digit, FedEx Express 12-digit, FedEx Ground 14- and 20-digit,
// DHL 10-digit waybill.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{ID: "ups_1z", Regexp: regexp.MustCompile(`(?i)\b1Z[0-9A-Z]{16}\b`), Hint: parcel.CourierUPS, Confidence: 90},
		{ID: "usps_intl", Regexp: regexp.MustCompile(`\b[A-Z]{2}[0-9]{9}[A-Z]{2}\b`), Hint: parcel.CourierUSPS, Confidence: 85},
		{ID: "usps_impb", Regexp: regexp.MustCompile(`\b9[0-9]{21}\b`), Hint: parcel.CourierUSPS, Confidence: 70},
		{ID: "fedex_express", Regexp: regexp.MustCompile(`\b[0-9]{12}\b`), Hint: parcel.CourierFedEx, Confidence: 60},
		{ID: "fedex_ground", Regexp: regexp.MustCompile(`\b[0-9]{14}\b`), Hint: parcel.CourierFedEx, Confidence: 60},
		{ID: "fedex_ground96", Regexp: regexp.MustCompile(`\b[0-9]{20}\b`), Hint: parcel.CourierFedEx, Confidence: 55},
		{ID: "dhl_waybill", Regexp: regexp.MustCompile(`\b[0-9]{10}\b`), Hint: parcel.CourierDHL, Confidence: 40},
	}
}

// Extract finds all candidates in text. Pure: no network or storage side
// effects, and idempotent for the same input. A single message may yield
// multiple candidates.
func Extract(patterns []Pattern, text string, src Source) []Candidate {
	if text == "" {
		return nil
	}

	var candidates []Candidate
	seen := make(map[string]struct{})
	for _, pattern := range patterns {
		if pattern.Regexp == nil {
			continue
		}
		for _, match := range pattern.Regexp.FindAllString(text, -1) {
			normalized := parcel.NormalizeTrackingNumber(match)
			if normalized == "" {
				continue
			}
			// The same pattern matching the same value twice in one message
			// adds nothing; distinct patterns still emit separately.
			key := pattern.ID + "\x00" + normalized
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			candidates = append(candidates, Candidate{
				Raw:          normalized,
				PatternID:    pattern.ID,
				Hint:         pattern.Hint,
				Confidence:   pattern.Confidence,
				MessageID:    src.MessageID,
				SenderDomain: src.SenderDomain,
				Subject:      src.Subject,
				ObservedAt:   src.ObservedAt,
			})
		}
	}
	return candidates
}
