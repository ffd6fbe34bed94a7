package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"parcelwatch/internal/classify"
	"parcelwatch/internal/config"
	"parcelwatch/internal/extract"
	"parcelwatch/internal/logging"
	"parcelwatch/internal/mail"
	"parcelwatch/internal/parcel"
	"parcelwatch/internal/tracker"
)

// CycleReport summarizes one reconciliation cycle.
type CycleReport struct {
	CycleID         string
	MessagesScanned int
	Discovered      int
	Merged          int
	Refreshed       int
	Failed          int
	Skipped         int
	Duration        time.Duration
}

// Option adjusts engine construction.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPatterns replaces the extraction pattern table.
func WithPatterns(patterns []extract.Pattern) Option {
	return func(e *Engine) { e.patterns = patterns }
}

// WithSearchTimeout replaces the mailbox search deadline.
func WithSearchTimeout(d time.Duration) Option {
	return func(e *Engine) { e.searchTimeout = d }
}

// Engine coordinates mailbox discovery and status refresh against the
// parcel store.
type Engine struct {
	cfg           *config.Config
	store         *parcel.Store
	source        mail.Source
	registry      *tracker.Registry
	patterns      []extract.Pattern
	classifier    *classify.Classifier
	logger        *slog.Logger
	now           func() time.Time
	searchTimeout time.Duration
}

// New builds an engine with the default pattern table and classifier.
func New(cfg *config.Config, store *parcel.Store, source mail.Source, registry *tracker.Registry, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Engine{
		cfg:        cfg,
		store:      store,
		source:     source,
		registry:   registry,
		patterns:   extract.DefaultPatterns(),
		classifier: classify.New(nil, nil),
		logger:     logging.WithComponent(logger, "reconcile"),
		now:        time.Now,
		// A full search is one list call plus one fetch per message,
		// each individually capped at the request timeout.
		searchTimeout: time.Duration(cfg.Tracking.RequestTimeoutSeconds*(cfg.Tracking.MaxMessagesPerCycle+1)) * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunCycle executes one discovery-and-refresh pass. The mailbox search
// runs before any store mutation, so a search failure leaves the store
// untouched.
func (e *Engine) RunCycle(ctx context.Context) (*CycleReport, error) {
	started := e.now()
	report := &CycleReport{CycleID: uuid.NewString()}
	logger := e.logger.With(logging.String("cycle_id", report.CycleID))
	logger.Info("reconciliation cycle starting")

	e.registry.ResetCircuits()

	query := mail.BuildQuery(e.cfg.Gmail.SearchQuery, e.cfg.Gmail.SinceDays)
	searchCtx, cancel := context.WithTimeout(ctx, e.searchTimeout)
	messages, err := e.source.Search(searchCtx, query, int64(e.cfg.Tracking.MaxMessagesPerCycle))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("search mailbox: %w", err)
	}
	report.MessagesScanned = len(messages)

	if err := e.ingest(ctx, logger, messages, report); err != nil {
		return nil, err
	}
	if err := e.refresh(ctx, logger, report); err != nil {
		return nil, err
	}

	report.Duration = e.now().Sub(started)
	logger.Info("reconciliation cycle complete",
		logging.Int("messages", report.MessagesScanned),
		logging.Int("discovered", report.Discovered),
		logging.Int("merged", report.Merged),
		logging.Int("refreshed", report.Refreshed),
		logging.Int("failed", report.Failed),
		logging.Int("skipped", report.Skipped),
		logging.Duration("duration", report.Duration))
	return report, nil
}

// ingest turns fetched messages into parcel upserts.
func (e *Engine) ingest(ctx context.Context, logger *slog.Logger, messages []mail.Message, report *CycleReport) error {
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return err
		}
		observedAt := msg.ReceivedAt
		if observedAt.IsZero() {
			observedAt = e.now()
		}
		src := extract.Source{
			MessageID:    msg.ID,
			SenderDomain: msg.SenderDomain,
			Subject:      msg.Subject,
			ObservedAt:   observedAt,
		}
		candidates := extract.Extract(e.patterns, msg.Subject+"\n"+msg.Body, src)
		for _, candidate := range candidates {
			cls := e.classifier.Classify(candidate)
			if cls.TrackingNumber == "" {
				continue
			}
			_, created, err := e.store.Upsert(ctx, cls, e.now())
			if err != nil {
				return fmt.Errorf("upsert parcel %s: %w", cls.TrackingNumber, err)
			}
			if created {
				report.Discovered++
				logger.Info("discovered parcel",
					logging.String("tracking_number", cls.TrackingNumber),
					logging.String("courier", string(cls.Courier)),
					logging.String("company", cls.Company),
					logging.Int("confidence", cls.Confidence))
			} else {
				report.Merged++
			}
		}
	}
	return nil
}

// refresh fetches live status for every parcel due a check, one worker
// per courier. Parcels of the same courier are checked sequentially.
func (e *Engine) refresh(ctx context.Context, logger *slog.Logger, report *CycleReport) error {
	staleAfter := time.Duration(e.cfg.Tracking.RefreshStaleMinutes) * time.Minute
	deliveredEvery := time.Duration(e.cfg.Tracking.DeliveredRefreshHours) * time.Hour
	due, err := e.store.ListDueForRefresh(ctx, staleAfter, deliveredEvery, e.now())
	if err != nil {
		return fmt.Errorf("list due parcels: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	byCourier := make(map[parcel.Courier][]*parcel.Parcel)
	for _, p := range due {
		byCourier[p.Courier] = append(byCourier[p.Courier], p)
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	for courier, parcels := range byCourier {
		group.Go(func() error {
			for _, p := range parcels {
				if err := groupCtx.Err(); err != nil {
					return err
				}
				refreshed, failed, skipped, err := e.refreshParcel(groupCtx, logger, p)
				if err != nil {
					return err
				}
				mu.Lock()
				report.Refreshed += refreshed
				report.Failed += failed
				report.Skipped += skipped
				mu.Unlock()
			}
			logger.Debug("courier refresh complete",
				logging.String("courier", string(courier)),
				logging.Int("parcels", len(parcels)))
			return nil
		})
	}
	return group.Wait()
}

// refreshParcel fetches and records status for one parcel. The returned
// counts feed the cycle report; only store errors propagate.
func (e *Engine) refreshParcel(ctx context.Context, logger *slog.Logger, p *parcel.Parcel) (refreshed, failed, skipped int, err error) {
	outcome, fetchErr := e.registry.StatusFor(ctx, p)
	if fetchErr != nil {
		switch tracker.Reason(fetchErr) {
		case tracker.ReasonUnsupported:
			// Still counts as a check; status keeps its last known value.
			if err := e.store.Touch(ctx, p.TrackingNumber, e.now()); err != nil && !errors.Is(err, parcel.ErrNotFound) {
				return 0, 0, 0, fmt.Errorf("touch parcel %s: %w", p.TrackingNumber, err)
			}
			logger.Debug("no provider for parcel",
				logging.String("tracking_number", p.TrackingNumber),
				logging.String("courier", string(p.Courier)))
			return 0, 0, 1, nil
		case tracker.ReasonCircuitOpen:
			logger.Debug("circuit open, skipping parcel refresh",
				logging.String("tracking_number", p.TrackingNumber),
				logging.String("courier", string(p.Courier)))
			return 0, 0, 1, nil
		}
		if ctx.Err() != nil {
			return 0, 0, 0, ctx.Err()
		}
		if err := e.store.RecordFailure(ctx, p.TrackingNumber, e.now()); err != nil && !errors.Is(err, parcel.ErrNotFound) {
			return 0, 0, 0, fmt.Errorf("record failure for %s: %w", p.TrackingNumber, err)
		}
		logger.Warn("status fetch failed",
			logging.String("tracking_number", p.TrackingNumber),
			logging.String("courier", string(p.Courier)),
			logging.Error(fetchErr))
		return 0, 1, 0, nil
	}

	err = e.store.RecordSuccess(ctx, p.TrackingNumber, outcome.Status, outcome.ETA, e.now())
	switch {
	case errors.Is(err, parcel.ErrBackwardTransition):
		logger.Warn("ignoring backward status transition",
			logging.String("tracking_number", p.TrackingNumber),
			logging.String("stored_status", string(p.Status)),
			logging.String("reported_status", string(outcome.Status)))
		return 1, 0, 0, nil
	case errors.Is(err, parcel.ErrNotFound):
		return 0, 0, 1, nil
	case err != nil:
		return 0, 0, 0, fmt.Errorf("record success for %s: %w", p.TrackingNumber, err)
	}
	if outcome.Status != p.Status {
		logger.Info("parcel status changed",
			logging.String("tracking_number", p.TrackingNumber),
			logging.String("from", string(p.Status)),
			logging.String("to", string(outcome.Status)))
	}
	return 1, 0, 0, nil
}

// Run executes cycles at the configured interval until ctx is canceled.
// The first cycle starts immediately. Cycle errors are logged and do not
// stop the loop.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Duration(e.cfg.Tracking.CheckIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("reconciliation loop starting",
		logging.Duration("interval", interval))
	for {
		if _, err := e.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Error("reconciliation cycle failed", logging.Error(err))
		}
		select {
		case <-ctx.Done():
			e.logger.Info("reconciliation loop stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
