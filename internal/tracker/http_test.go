package tracker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parcelwatch/internal/parcel"
)

func testProvider(t *testing.T, handler http.HandlerFunc) *httpProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return newHTTPProvider(parcel.CourierUPS, server.URL+"/track/%s", "test-key", 5*time.Second)
}

func TestHTTPProviderFetchParsesStatus(t *testing.T) {
	var gotAuth, gotPath string
	provider := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "IN_TRANSIT", "estimated_delivery": "2026-03-05"}`))
	})

	outcome, err := provider.Fetch(context.Background(), "1Z999AA10123456784")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if outcome.Status != parcel.StatusInTransit {
		t.Fatalf("unexpected status %q", outcome.Status)
	}
	if outcome.ETA == nil || !outcome.ETA.Equal(time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected ETA %v", outcome.ETA)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	if gotPath != "/track/1Z999AA10123456784" {
		t.Fatalf("unexpected request path %q", gotPath)
	}
}

func TestHTTPProviderFetchUnparseableETAIgnored(t *testing.T) {
	provider := testProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status": "delivered", "estimated_delivery": "soon"}`))
	})

	outcome, err := provider.Fetch(context.Background(), "1Z999AA10123456784")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if outcome.Status != parcel.StatusDelivered {
		t.Fatalf("unexpected status %q", outcome.Status)
	}
	if outcome.ETA != nil {
		t.Fatalf("expected unparseable estimate dropped, got %v", outcome.ETA)
	}
}

func TestHTTPProviderRateLimitTransientWithRetryAfter(t *testing.T) {
	provider := testProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := provider.Fetch(context.Background(), "1Z999AA10123456784")
	if Reason(err) != ReasonTransient {
		t.Fatalf("unexpected failure reason %q", Reason(err))
	}
	var statusErr *httpStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected httpStatusError, got %v", err)
	}
	if statusErr.retryAfter != 7*time.Second {
		t.Fatalf("unexpected retry-after %v", statusErr.retryAfter)
	}
}

func TestHTTPProviderServerErrorTransient(t *testing.T) {
	provider := testProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := provider.Fetch(context.Background(), "1Z999AA10123456784")
	if Reason(err) != ReasonTransient {
		t.Fatalf("unexpected failure reason %q", Reason(err))
	}
}

func TestHTTPProviderAuthFailurePermanent(t *testing.T) {
	provider := testProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := provider.Fetch(context.Background(), "1Z999AA10123456784")
	if Reason(err) != ReasonPermanent {
		t.Fatalf("unexpected failure reason %q", Reason(err))
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want parcel.Status
	}{
		{"IN_TRANSIT", parcel.StatusInTransit},
		{"in transit", parcel.StatusInTransit},
		{"Out For Delivery", parcel.StatusOutForDelivery},
		{"DELIVERED", parcel.StatusDelivered},
		{"exception", parcel.StatusException},
		{"label_created", parcel.StatusNew},
		{"teleported", parcel.StatusUnknown},
		{"", parcel.StatusUnknown},
	}
	for _, tc := range cases {
		if got := normalizeStatus(tc.raw); got != tc.want {
			t.Fatalf("normalizeStatus(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("12"); got != 12*time.Second {
		t.Fatalf("unexpected delta-seconds parse %v", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Fatalf("empty header must yield zero, got %v", got)
	}
	if got := parseRetryAfter("not-a-date"); got != 0 {
		t.Fatalf("garbage header must yield zero, got %v", got)
	}
}
