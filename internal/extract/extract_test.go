package extract_test

import (
	"testing"
	"time"

	"parcelwatch/internal/extract"
	"parcelwatch/internal/parcel"
)

func testSource() extract.Source {
	return extract.Source{
		MessageID:    "msg-1",
		SenderDomain: "ups.com",
		Subject:      "Your package is on its way",
		ObservedAt:   time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestExtractFindsUPSTracking(t *testing.T) {
	body := "Tracking number: 1Z999AA10123456784. Thanks for shopping."

	candidates := extract.Extract(extract.DefaultPatterns(), body, testSource())
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d: %+v", len(candidates), candidates)
	}
	got := candidates[0]
	if got.Raw != "1Z999AA10123456784" {
		t.Fatalf("unexpected tracking number %q", got.Raw)
	}
	if got.PatternID != "ups_1z" {
		t.Fatalf("unexpected pattern %q", got.PatternID)
	}
	if got.Hint != parcel.CourierUPS {
		t.Fatalf("unexpected hint %q", got.Hint)
	}
	if got.MessageID != "msg-1" {
		t.Fatalf("candidate lost source message id: %+v", got)
	}
}

func TestExtractNormalizesLowercaseUPS(t *testing.T) {
	candidates := extract.Extract(extract.DefaultPatterns(), "code 1z999aa10123456784 shipped", testSource())
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].Raw != "1Z999AA10123456784" {
		t.Fatalf("expected normalized uppercase value, got %q", candidates[0].Raw)
	}
}

func TestExtractMultipleCandidatesFromOneMessage(t *testing.T) {
	body := "First box 1Z999AA10123456784 and second box 9400111899223100001234 ship separately."

	candidates := extract.Extract(extract.DefaultPatterns(), body, testSource())
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(candidates), candidates)
	}
	ids := map[string]string{}
	for _, c := range candidates {
		ids[c.PatternID] = c.Raw
	}
	if ids["ups_1z"] != "1Z999AA10123456784" {
		t.Fatalf("missing ups candidate: %v", ids)
	}
	if ids["usps_impb"] != "9400111899223100001234" {
		t.Fatalf("missing usps candidate: %v", ids)
	}
}

func TestExtractDeduplicatesRepeatedMatch(t *testing.T) {
	body := "1Z999AA10123456784 mentioned twice: 1Z999AA10123456784"

	candidates := extract.Extract(extract.DefaultPatterns(), body, testSource())
	if len(candidates) != 1 {
		t.Fatalf("expected repeated match collapsed to 1 candidate, got %d", len(candidates))
	}
}

func TestExtractAmbiguousDigitsKeepLowConfidenceHints(t *testing.T) {
	// Ten digits match only the DHL waybill shape.
	candidates := extract.Extract(extract.DefaultPatterns(), "ref 1234567890 enclosed", testSource())
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d: %+v", len(candidates), candidates)
	}
	if candidates[0].PatternID != "dhl_waybill" {
		t.Fatalf("unexpected pattern %q", candidates[0].PatternID)
	}
	if candidates[0].Confidence >= 60 {
		t.Fatalf("ambiguous numeric shape should carry low confidence, got %d", candidates[0].Confidence)
	}
}

func TestExtractEmptyTextYieldsNothing(t *testing.T) {
	if got := extract.Extract(extract.DefaultPatterns(), "", testSource()); got != nil {
		t.Fatalf("expected no candidates, got %+v", got)
	}
}

func TestExtractNoMatchYieldsNothing(t *testing.T) {
	got := extract.Extract(extract.DefaultPatterns(), "your order has shipped, no tracking provided", testSource())
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %+v", got)
	}
}
