package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"parcelwatch/internal/parcel"
)

// Courier API endpoints. The %s placeholder receives the tracking number.
var defaultEndpoints = map[parcel.Courier]string{
	parcel.CourierUPS:   "https://onlinetools.ups.com/api/track/v1/details/%s",
	parcel.CourierFedEx: "https://apis.fedex.com/track/v1/trackingnumbers/%s",
	parcel.CourierUSPS:  "https://apis.usps.com/tracking/v3/tracking/%s",
	parcel.CourierDHL:   "https://api-eu.dhl.com/track/shipments/%s",
}

// Courier APIs meter aggressively; two requests a second stays well under
// every published free-tier quota.
const (
	providerRequestsPerSecond = 2
	providerBurst             = 4
)

type httpProvider struct {
	courier  parcel.Courier
	endpoint string
	apiKey   string
	client   *http.Client
	limiter  *rate.Limiter
}

func newHTTPProvider(courier parcel.Courier, endpoint, apiKey string, timeout time.Duration) *httpProvider {
	return &httpProvider{
		courier:  courier,
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(providerRequestsPerSecond), providerBurst),
	}
}

func (p *httpProvider) Courier() parcel.Courier {
	return p.courier
}

// statusResponse is the subset of the courier tracking payload the engine
// consumes.
type statusResponse struct {
	Status            string `json:"status"`
	EstimatedDelivery string `json:"estimated_delivery"`
}

func (p *httpProvider) Fetch(ctx context.Context, trackingNumber string) (Outcome, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return Outcome{}, &ProviderError{Reason: ReasonTransient, Err: err}
	}

	endpoint := fmt.Sprintf(p.endpoint, url.PathEscape(trackingNumber))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Outcome{}, &ProviderError{Reason: ReasonPermanent, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Outcome{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		statusErr := &httpStatusError{
			status:     resp.StatusCode,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
		reason := ReasonPermanent
		if statusErr.transient() {
			reason = ReasonTransient
		}
		return Outcome{}, &ProviderError{Reason: reason, Err: statusErr}
	}

	var payload statusResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return Outcome{}, &ProviderError{Reason: ReasonPermanent, Err: fmt.Errorf("decode response: %w", err)}
	}

	outcome := Outcome{Status: normalizeStatus(payload.Status)}
	if payload.EstimatedDelivery != "" {
		if eta, err := parseETA(payload.EstimatedDelivery); err == nil {
			outcome.ETA = &eta
		}
	}
	return outcome, nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) {
		return &ProviderError{Reason: ReasonTransient, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Reason: ReasonTransient, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &ProviderError{Reason: ReasonTransient, Err: err}
	}
	return &ProviderError{Reason: ReasonPermanent, Err: err}
}

// parseRetryAfter accepts the delta-seconds and HTTP-date forms. Zero
// means the header was absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if delay := time.Until(at); delay > 0 {
			return delay
		}
	}
	return 0
}

func parseETA(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if eta, err := time.Parse(layout, value); err == nil {
			return eta, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized delivery estimate %q", value)
}
