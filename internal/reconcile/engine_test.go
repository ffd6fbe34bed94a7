package reconcile_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"parcelwatch/internal/config"
	"parcelwatch/internal/extract"
	"parcelwatch/internal/mail"
	"parcelwatch/internal/parcel"
	"parcelwatch/internal/reconcile"
	"parcelwatch/internal/testsupport"
	"parcelwatch/internal/tracker"
)

type fakeSource struct {
	messages []mail.Message
	err      error
	queries  []string
}

func (s *fakeSource) Search(_ context.Context, query string, _ int64) ([]mail.Message, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.messages, nil
}

type blockingSource struct{}

func (s *blockingSource) Search(ctx context.Context, _ string, _ int64) ([]mail.Message, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type stubProvider struct {
	courier  parcel.Courier
	outcomes []tracker.Outcome
	errs     []error
	calls    int
}

func (p *stubProvider) Courier() parcel.Courier {
	return p.courier
}

func (p *stubProvider) Fetch(_ context.Context, _ string) (tracker.Outcome, error) {
	idx := p.calls
	p.calls++
	if last := max(len(p.outcomes), len(p.errs)) - 1; idx > last {
		idx = last
	}
	if idx < len(p.errs) && p.errs[idx] != nil {
		return tracker.Outcome{}, p.errs[idx]
	}
	return p.outcomes[idx], nil
}

func engineConfig(t *testing.T) *config.Config {
	cfg := testsupport.NewConfig(t)
	cfg.Tracking.RetryMaxAttempts = 1
	cfg.Tracking.RefreshStaleMinutes = 60
	return cfg
}

func upsMessage(id string) mail.Message {
	return mail.Message{
		ID:           id,
		SenderDomain: "ups.com",
		Subject:      "Your package has shipped",
		Body:         "Tracking number: 1Z999AA10123456784",
		ReceivedAt:   time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC),
	}
}

func newEngine(t *testing.T, cfg *config.Config, source mail.Source, provider tracker.Provider, now func() time.Time) (*reconcile.Engine, *parcel.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	opts := []tracker.Option{
		tracker.WithSleeper(func(context.Context, time.Duration) error { return nil }),
	}
	if provider != nil {
		opts = append(opts, tracker.WithProvider(provider))
	}
	registry := tracker.NewRegistry(cfg, nil, opts...)
	engine := reconcile.New(cfg, store, source, registry, nil, reconcile.WithClock(now))
	return engine, store
}

func TestRunCycleDiscoversAndRefreshes(t *testing.T) {
	cfg := engineConfig(t)
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	eta := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)
	provider := &stubProvider{
		courier:  parcel.CourierUPS,
		outcomes: []tracker.Outcome{{Status: parcel.StatusInTransit, ETA: &eta}},
	}
	engine, store := newEngine(t, cfg, &fakeSource{messages: []mail.Message{upsMessage("msg-1")}}, provider, func() time.Time { return now })

	report, err := engine.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if report.Discovered != 1 {
		t.Fatalf("expected 1 discovered, got %+v", report)
	}
	if report.Refreshed != 1 {
		t.Fatalf("expected 1 refreshed, got %+v", report)
	}

	stored, err := store.GetByTrackingNumber(context.Background(), "1Z999AA10123456784")
	if err != nil {
		t.Fatalf("GetByTrackingNumber failed: %v", err)
	}
	if stored.Courier != parcel.CourierUPS {
		t.Fatalf("unexpected courier %q", stored.Courier)
	}
	if stored.Status != parcel.StatusInTransit {
		t.Fatalf("unexpected status %q", stored.Status)
	}
	if stored.ETA == nil || !stored.ETA.Equal(eta) {
		t.Fatalf("unexpected ETA %v", stored.ETA)
	}
	if stored.LastSuccessAt == nil {
		t.Fatal("expected last success timestamp")
	}
}

func TestRunCycleIdempotentForRepeatedMessage(t *testing.T) {
	cfg := engineConfig(t)
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	provider := &stubProvider{
		courier:  parcel.CourierUPS,
		outcomes: []tracker.Outcome{{Status: parcel.StatusInTransit}},
	}
	source := &fakeSource{messages: []mail.Message{upsMessage("msg-1")}}
	engine, store := newEngine(t, cfg, source, provider, func() time.Time { return now })

	if _, err := engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	report, err := engine.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if report.Discovered != 0 {
		t.Fatalf("repeated message must not rediscover, got %+v", report)
	}

	stored, err := store.GetByTrackingNumber(context.Background(), "1Z999AA10123456784")
	if err != nil {
		t.Fatalf("GetByTrackingNumber failed: %v", err)
	}
	if len(stored.SourceMessageIDs) != 1 {
		t.Fatalf("expected single source message, got %v", stored.SourceMessageIDs)
	}
}

func TestRunCycleSearchFailureLeavesStoreUntouched(t *testing.T) {
	cfg := engineConfig(t)
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	engine, store := newEngine(t, cfg, &fakeSource{err: errors.New("gmail unavailable")}, nil, func() time.Time { return now })

	if _, err := engine.RunCycle(context.Background()); err == nil {
		t.Fatal("expected cycle failure")
	}
	parcels, err := store.Snapshot(context.Background(), 10)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(parcels) != 0 {
		t.Fatalf("failed search must not mutate the store, got %d parcels", len(parcels))
	}
}

func TestRunCycleBoundsHungMailboxSearch(t *testing.T) {
	cfg := engineConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	registry := tracker.NewRegistry(cfg, nil)
	engine := reconcile.New(cfg, store, &blockingSource{}, registry, nil,
		reconcile.WithSearchTimeout(20*time.Millisecond))

	_, err := engine.RunCycle(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline to cut off the search, got %v", err)
	}

	parcels, err := store.Snapshot(context.Background(), 10)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(parcels) != 0 {
		t.Fatalf("timed-out search must not mutate the store, got %d parcels", len(parcels))
	}
}

type cancelingProvider struct {
	courier parcel.Courier
	cancel  context.CancelFunc
}

func (p *cancelingProvider) Courier() parcel.Courier {
	return p.courier
}

func (p *cancelingProvider) Fetch(ctx context.Context, _ string) (tracker.Outcome, error) {
	p.cancel()
	return tracker.Outcome{}, ctx.Err()
}

func TestRunCycleStopsRefreshOnCancellation(t *testing.T) {
	cfg := engineConfig(t)
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	provider := &cancelingProvider{courier: parcel.CourierUPS, cancel: cancel}
	engine, store := newEngine(t, cfg, &fakeSource{messages: []mail.Message{upsMessage("msg-1")}}, provider, func() time.Time { return now })

	_, err := engine.RunCycle(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to abort the cycle, got %v", err)
	}

	stored, err := store.GetByTrackingNumber(context.Background(), "1Z999AA10123456784")
	if err != nil {
		t.Fatalf("GetByTrackingNumber failed: %v", err)
	}
	if stored.ConsecutiveFailures != 0 {
		t.Fatalf("canceled fetch must not count as failure, got %d", stored.ConsecutiveFailures)
	}
	if stored.LastCheckedAt != nil {
		t.Fatal("canceled fetch must not record a check")
	}
}

func TestRunCycleRecordsFetchFailures(t *testing.T) {
	cfg := engineConfig(t)
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	provider := &stubProvider{
		courier: parcel.CourierUPS,
		errs:    []error{&tracker.ProviderError{Reason: tracker.ReasonPermanent, Err: errors.New("bad key")}},
	}
	engine, store := newEngine(t, cfg, &fakeSource{messages: []mail.Message{upsMessage("msg-1")}}, provider, func() time.Time { return now })

	report, err := engine.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if report.Failed != 1 {
		t.Fatalf("expected 1 failed refresh, got %+v", report)
	}

	stored, err := store.GetByTrackingNumber(context.Background(), "1Z999AA10123456784")
	if err != nil {
		t.Fatalf("GetByTrackingNumber failed: %v", err)
	}
	if stored.ConsecutiveFailures != 1 {
		t.Fatalf("expected failure recorded, got %d", stored.ConsecutiveFailures)
	}
	if stored.Status != parcel.StatusNew {
		t.Fatalf("failed fetch must not change status, got %q", stored.Status)
	}
	if stored.LastSuccessAt != nil {
		t.Fatal("failed fetch must not record success")
	}
}

func TestRunCycleSkipsUnsupportedCouriers(t *testing.T) {
	cfg := engineConfig(t)
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	source := &fakeSource{messages: []mail.Message{{
		ID:           "msg-7",
		SenderDomain: "example.org",
		Subject:      "your order",
		Body:         "reference AB123456789XY",
		ReceivedAt:   now,
	}}}
	store := testsupport.MustOpenStore(t, cfg)
	registry := tracker.NewRegistry(cfg, nil)
	patterns := []extract.Pattern{{
		ID:         "generic_ref",
		Regexp:     regexp.MustCompile(`\bAB[0-9]{9}XY\b`),
		Hint:       parcel.CourierUnknown,
		Confidence: 30,
	}}
	engine := reconcile.New(cfg, store, source, registry, nil,
		reconcile.WithClock(func() time.Time { return now }),
		reconcile.WithPatterns(patterns))

	report, err := engine.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if report.Discovered != 1 {
		t.Fatalf("expected discovery despite unknown courier, got %+v", report)
	}
	if report.Skipped != 1 {
		t.Fatalf("expected unsupported refresh skipped, got %+v", report)
	}

	stored, err := store.GetByTrackingNumber(context.Background(), "AB123456789XY")
	if err != nil {
		t.Fatalf("GetByTrackingNumber failed: %v", err)
	}
	if stored.Courier != parcel.CourierUnknown {
		t.Fatalf("unexpected courier %q", stored.Courier)
	}
	if stored.ConsecutiveFailures != 0 {
		t.Fatal("unsupported skip must not count as failure")
	}
	if stored.Status != parcel.StatusNew {
		t.Fatalf("unsupported skip must not change status, got %q", stored.Status)
	}
	if stored.LastCheckedAt == nil {
		t.Fatal("unsupported skip must still record the check time")
	}
}

func TestRunCycleIgnoresBackwardTransition(t *testing.T) {
	cfg := engineConfig(t)
	cfg.Tracking.DeliveredRefreshHours = 1
	clock := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	provider := &stubProvider{
		courier: parcel.CourierUPS,
		outcomes: []tracker.Outcome{
			{Status: parcel.StatusDelivered},
			{Status: parcel.StatusInTransit},
		},
	}
	engine, store := newEngine(t, cfg, &fakeSource{messages: []mail.Message{upsMessage("msg-1")}}, provider, func() time.Time { return clock })

	if _, err := engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}

	// Two hours later the delivered parcel is due its periodic re-check
	// and the API reports a stale in-transit scan.
	clock = clock.Add(2 * time.Hour)
	report, err := engine.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if report.Refreshed != 1 {
		t.Fatalf("expected refresh despite stale report, got %+v", report)
	}

	stored, err := store.GetByTrackingNumber(context.Background(), "1Z999AA10123456784")
	if err != nil {
		t.Fatalf("GetByTrackingNumber failed: %v", err)
	}
	if stored.Status != parcel.StatusDelivered {
		t.Fatalf("delivered status must never regress, got %q", stored.Status)
	}
}
