package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"parcelwatch/internal/config"
	"parcelwatch/internal/logging"
	"parcelwatch/internal/parcel"
)

// Sleeper pauses between retry attempts. The default honors context
// cancellation; tests substitute a recorder.
type Sleeper func(ctx context.Context, d time.Duration) error

// Jitter perturbs a backoff delay. The default draws from [0, d/2), which
// keeps the doubled delays strictly increasing even at the extremes.
type Jitter func(d time.Duration) time.Duration

// Option adjusts registry construction.
type Option func(*Registry)

// WithSleeper replaces the inter-attempt sleep.
func WithSleeper(sleep Sleeper) Option {
	return func(r *Registry) { r.sleep = sleep }
}

// WithJitter replaces the backoff jitter source.
func WithJitter(jitter Jitter) Option {
	return func(r *Registry) { r.jitter = jitter }
}

// WithProvider installs or replaces the provider for its courier.
func WithProvider(p Provider) Option {
	return func(r *Registry) { r.providers[p.Courier()] = p }
}

// Registry routes status fetches to per-courier providers and enforces
// the retry and circuit policy around them.
type Registry struct {
	providers   map[parcel.Courier]Provider
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	threshold   int
	sleep       Sleeper
	jitter      Jitter
	logger      *slog.Logger

	mu       sync.Mutex
	failures map[parcel.Courier]int
	open     map[parcel.Courier]bool
}

// NewRegistry builds providers for every courier with a configured API
// key. Couriers without a key fall back to the unsupported provider.
func NewRegistry(cfg *config.Config, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.Tracking.RequestTimeoutSeconds) * time.Second

	providers := make(map[parcel.Courier]Provider, len(parcel.AllCouriers()))
	for _, courier := range parcel.AllCouriers() {
		endpoint, hasEndpoint := defaultEndpoints[courier]
		apiKey := cfg.APIKeyFor(string(courier))
		if !hasEndpoint || apiKey == "" {
			providers[courier] = &fallbackProvider{courier: courier}
			continue
		}
		providers[courier] = newHTTPProvider(courier, endpoint, apiKey, timeout)
	}

	r := &Registry{
		providers:   providers,
		maxAttempts: cfg.Tracking.RetryMaxAttempts,
		baseDelay:   time.Duration(cfg.Tracking.RetryBaseDelayMS) * time.Millisecond,
		maxDelay:    time.Duration(cfg.Tracking.RetryMaxDelayMS) * time.Millisecond,
		threshold:   cfg.Tracking.CircuitFailureThreshold,
		sleep:       sleepContext,
		jitter:      defaultJitter,
		logger:      logging.WithComponent(logger, "tracker"),
		failures:    make(map[parcel.Courier]int),
		open:        make(map[parcel.Courier]bool),
	}
	if r.maxAttempts < 1 {
		r.maxAttempts = 1
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Supported reports whether the courier has a real API provider.
func (r *Registry) Supported(courier parcel.Courier) bool {
	_, fallback := r.providers[courier].(*fallbackProvider)
	return r.providers[courier] != nil && !fallback
}

// ResetCircuits clears all failure counts and reopens tripped couriers.
// Called at the start of every reconciliation cycle.
func (r *Registry) ResetCircuits() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = make(map[parcel.Courier]int)
	r.open = make(map[parcel.Courier]bool)
}

// CircuitOpen reports whether the courier's circuit is currently tripped.
func (r *Registry) CircuitOpen(courier parcel.Courier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open[courier]
}

// StatusFor fetches the current status for one parcel, retrying transient
// failures with exponential backoff. Permanent and unsupported failures
// return immediately. A tripped circuit short-circuits without any
// provider call.
func (r *Registry) StatusFor(ctx context.Context, p *parcel.Parcel) (Outcome, error) {
	courier := p.Courier
	if r.CircuitOpen(courier) {
		return Outcome{}, &ProviderError{
			Reason: ReasonCircuitOpen,
			Err:    fmt.Errorf("circuit open for courier %s", courier),
		}
	}

	provider, ok := r.providers[courier]
	if !ok {
		provider = &fallbackProvider{courier: courier}
	}

	var lastErr error
	delay := r.baseDelay
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		outcome, err := provider.Fetch(ctx, p.TrackingNumber)
		if err == nil {
			r.recordOutcome(courier, true)
			return outcome, nil
		}
		lastErr = err

		reason := Reason(err)
		if reason == ReasonUnsupported {
			// Not a courier health signal; leave the circuit alone.
			return Outcome{}, err
		}
		if reason == ReasonPermanent || attempt == r.maxAttempts {
			break
		}

		wait := r.attemptDelay(delay, err)
		r.logger.Debug("retrying status fetch",
			logging.String("courier", string(courier)),
			logging.String("tracking_number", p.TrackingNumber),
			logging.Int("attempt", attempt),
			logging.Duration("delay", wait),
			logging.Error(err))
		if err := r.sleep(ctx, wait); err != nil {
			lastErr = &ProviderError{Reason: ReasonTransient, Err: err}
			break
		}
		delay = min(delay*2, r.maxDelay)
	}

	r.recordOutcome(courier, false)
	return Outcome{}, lastErr
}

// attemptDelay applies jitter and honors any server-provided Retry-After
// when it exceeds the computed backoff.
func (r *Registry) attemptDelay(delay time.Duration, err error) time.Duration {
	wait := delay + r.jitter(delay)
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) && statusErr.retryAfter > wait {
		wait = statusErr.retryAfter
	}
	return wait
}

func (r *Registry) recordOutcome(courier parcel.Courier, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if success {
		r.failures[courier] = 0
		return
	}
	r.failures[courier]++
	if r.threshold > 0 && r.failures[courier] >= r.threshold && !r.open[courier] {
		r.open[courier] = true
		r.logger.Warn("circuit opened for courier",
			logging.String("courier", string(courier)),
			logging.Int("consecutive_failures", r.failures[courier]))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func defaultJitter(d time.Duration) time.Duration {
	if d <= 1 {
		return 0
	}
	return rand.N(d / 2)
}
