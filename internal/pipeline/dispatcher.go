package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"stock-scout/internal/bus"
	"stock-scout/internal/interfaces"
	"stock-scout/internal/logger"
	"stock-scout/internal/notify"
	"stock-scout/internal/registry"
	"stock-scout/internal/trace"
	"stock-scout/internal/types"
)

// DispatcherConfig carries the dispatcher's tunables.
type DispatcherConfig struct {
	RatingThreshold   int
	ScanTopN          int
	ScanInterval      time.Duration
	SentimentInterval time.Duration
	SentimentTopN     int
}

// Dispatcher is the main loop: it consumes consultation outcomes, applies
// the quality gate, drives the persistence/notification side effects and
// owns the periodic watchlist scanning cadence.
type Dispatcher struct {
	bus       *bus.Bus
	reg       *registry.Registry
	store     interfaces.RecommendationStore
	notifier  interfaces.Notifier
	journal   interfaces.ResultsJournal
	trending  interfaces.TrendingSource
	watchlist *Watchlist
	cfg       DispatcherConfig
	cron      *cron.Cron
	events    <-chan types.Event
}

// NewDispatcher subscribes immediately so outcomes published before Run is
// scheduled queue up instead of finding no subscriber.
func NewDispatcher(b *bus.Bus, reg *registry.Registry, store interfaces.RecommendationStore,
	notifier interfaces.Notifier, journal interfaces.ResultsJournal,
	trending interfaces.TrendingSource, watchlist *Watchlist, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		bus:       b,
		reg:       reg,
		store:     store,
		notifier:  notifier,
		journal:   journal,
		trending:  trending,
		watchlist: watchlist,
		cfg:       cfg,
		cron:      cron.New(),
		events:    b.Subscribe(types.ConsultationComplete, types.ConsultationFailed),
	}
}

// Run consumes consultation outcomes until the bus closes or ctx is
// cancelled. Periodic schedules start alongside and stop on return, waiting
// for any scan still running so it cannot publish into a closing bus.
func (d *Dispatcher) Run(ctx context.Context) {
	d.startSchedules(ctx)
	defer func() { <-d.cron.Stop().Done() }()

	logger.Info(ctx, "Dispatcher started",
		"rating_threshold", d.cfg.RatingThreshold,
		"scan_top_n", d.cfg.ScanTopN,
		"scan_interval", d.cfg.ScanInterval.String())

	for {
		select {
		case ev, ok := <-d.events:
			if !ok {
				logger.Info(ctx, "Dispatcher stopped")
				return
			}
			switch ev.Kind {
			case types.ConsultationComplete:
				d.dispatch(ctx, ev)
			case types.ConsultationFailed:
				d.dispatchFailure(ctx, ev)
			}
		case <-ctx.Done():
			logger.Info(ctx, "Dispatcher stopped")
			return
		}
	}
}

func (d *Dispatcher) startSchedules(ctx context.Context) {
	_, err := d.cron.AddFunc(fmt.Sprintf("@every %s", d.cfg.ScanInterval), func() {
		d.scanWatchlist(ctx)
	})
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to schedule watchlist scan", err)
	}
	if d.trending != nil && d.cfg.SentimentInterval > 0 {
		_, err = d.cron.AddFunc(fmt.Sprintf("@every %s", d.cfg.SentimentInterval), func() {
			d.scanSentiment(ctx)
		})
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to schedule sentiment scan", err)
		}
	}
	d.cron.Start()
}

// dispatch applies the gating rule and fires the side effects. Each side
// effect fails independently: a dead notification channel must not cost a
// persistence write, and vice versa. Dispatch itself is never retried.
func (d *Dispatcher) dispatch(ctx context.Context, ev types.Event) {
	ctx, span := trace.StartSpan(ctx, "pipeline.dispatch")
	defer span.End()

	rec := ev.Recommendation
	if rec == nil {
		logger.Error(ctx, "ConsultationComplete without recommendation payload", "symbol", ev.Symbol)
		return
	}

	entry, ok := d.reg.Release(ctx, ev.CorrelationID)
	if !ok {
		// Duplicate or stale completion; side effects already ran.
		return
	}

	if d.journal != nil {
		if err := d.journal.Append(ctx, rec); err != nil {
			logger.ErrorWithErr(ctx, "Failed to journal consultation result", err, "symbol", ev.Symbol)
		}
	}

	highQuality := rec.Rating >= d.cfg.RatingThreshold
	message := notify.FormatRecommendation(rec)

	if entry.Source.Direct() {
		d.notifyRequesters(ctx, entry.Requesters, message, ev.Symbol)
	}

	if !highQuality {
		logger.Info(ctx, "Recommendation below threshold, not persisting",
			"symbol", ev.Symbol, "rating", rec.Rating, "threshold", d.cfg.RatingThreshold)
		return
	}

	if err := d.store.InsertRecommendation(ctx, rec); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist recommendation", err, "symbol", ev.Symbol)
	} else {
		logger.Info(ctx, "High-quality recommendation persisted",
			"symbol", ev.Symbol, "rating", rec.Rating, "confidence", rec.Confidence)
	}

	if err := d.notifier.Notify(ctx, interfaces.Audience{Broadcast: true}, message); err != nil {
		logger.ErrorWithErr(ctx, "Broadcast notification failed", err, "symbol", ev.Symbol)
	}
}

// dispatchFailure surfaces a terminal failure to whoever asked. The worker
// that exhausted the retries already removed the registry entry.
func (d *Dispatcher) dispatchFailure(ctx context.Context, ev types.Event) {
	if ev.Failure == nil {
		logger.Error(ctx, "ConsultationFailed without failure payload", "symbol", ev.Symbol)
		return
	}
	logger.Warn(ctx, "Terminal pipeline failure",
		"symbol", ev.Symbol, "stage", ev.Failure.Stage, "error", ev.Failure.Err)

	message := notify.FormatFailure(ev.Symbol, ev.Failure.Stage, ev.Failure.Err)
	d.notifyRequesters(ctx, ev.Failure.Requesters, message, ev.Symbol)
}

func (d *Dispatcher) notifyRequesters(ctx context.Context, requesters []string, message, symbol string) {
	if len(requesters) == 0 {
		return
	}
	for _, requester := range requesters {
		if err := d.notifier.Notify(ctx, interfaces.Audience{Requester: requester}, message); err != nil {
			logger.ErrorWithErr(ctx, "Direct notification failed", err,
				"symbol", symbol, "requester", requester)
		}
	}
}

// scanWatchlist publishes scheduled analysis requests for up to top-N
// cooled-down watchlist symbols not currently in flight.
func (d *Dispatcher) scanWatchlist(ctx context.Context) {
	picked := d.watchlist.Pick(time.Now(), d.cfg.ScanTopN, d.reg.InFlight)
	if len(picked) == 0 {
		logger.Debug(ctx, "Watchlist scan found nothing to analyze")
		return
	}
	logger.Info(ctx, "Scheduling watchlist analysis", "symbols", picked)
	for _, symbol := range picked {
		d.bus.Publish(ctx, types.Event{
			Kind:   types.AnalysisRequested,
			Symbol: symbol,
			Source: types.SourceScheduled,
		})
	}
}

// scanSentiment merges currently trending symbols into the watchlist.
func (d *Dispatcher) scanSentiment(ctx context.Context) {
	symbols, err := d.trending.Trending(ctx, d.cfg.SentimentTopN)
	if err != nil {
		logger.ErrorWithErr(ctx, "Sentiment scan failed", err)
		return
	}
	valid := symbols[:0]
	for _, s := range symbols {
		if norm, ok := types.NormalizeSymbol(s); ok {
			valid = append(valid, norm)
		}
	}
	if len(valid) == 0 {
		return
	}
	logger.Info(ctx, "Adding trending symbols to watchlist", "symbols", valid)
	d.watchlist.Add(valid...)
}
