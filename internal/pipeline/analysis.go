package pipeline

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"

	"stock-scout/internal/bus"
	"stock-scout/internal/interfaces"
	"stock-scout/internal/logger"
	"stock-scout/internal/registry"
	"stock-scout/internal/trace"
	"stock-scout/internal/types"
)

// AnalysisWorker consumes AnalysisRequested events, runs the data
// fetch/summarization collaborator and publishes ReportReady. Independent
// symbols are processed concurrently up to a cap; failures go through the
// registry's shared retry bookkeeping.
type AnalysisWorker struct {
	bus          *bus.Bus
	reg          *registry.Registry
	fetcher      interfaces.Fetcher
	sem          *semaphore.Weighted
	fetchTimeout time.Duration
	events       <-chan types.Event
}

// NewAnalysisWorker subscribes immediately so events published before Run is
// scheduled queue up instead of finding no subscriber.
func NewAnalysisWorker(b *bus.Bus, reg *registry.Registry, fetcher interfaces.Fetcher, concurrency int, fetchTimeout time.Duration) *AnalysisWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &AnalysisWorker{
		bus:          b,
		reg:          reg,
		fetcher:      fetcher,
		sem:          semaphore.NewWeighted(int64(concurrency)),
		fetchTimeout: fetchTimeout,
		events:       b.Subscribe(types.AnalysisRequested),
	}
}

// Run consumes until the bus closes or ctx is cancelled. An error handling
// one event never terminates the loop.
func (w *AnalysisWorker) Run(ctx context.Context) {
	logger.Info(ctx, "Analysis worker started")
	for {
		select {
		case ev, ok := <-w.events:
			if !ok {
				logger.Info(ctx, "Analysis worker stopped")
				return
			}
			w.handle(ctx, ev)
		case <-ctx.Done():
			logger.Info(ctx, "Analysis worker stopped")
			return
		}
	}
}

func (w *AnalysisWorker) handle(ctx context.Context, ev types.Event) {
	corrID := ev.CorrelationID
	if corrID == "" {
		// Fresh request: admission is the single gate against duplicate
		// concurrent work for the same symbol.
		adm := w.reg.TryAdmit(ctx, ev.Symbol, ev.Source, ev.Requester)
		if !adm.Admitted {
			logger.Info(ctx, "Symbol already in flight, request coalesced",
				"symbol", ev.Symbol, "correlation_id", adm.CorrelationID)
			return
		}
		corrID = adm.CorrelationID
	} else if _, ok := w.reg.Snapshot(corrID); !ok {
		// Retry republication for an entry that no longer exists.
		logger.Warn(ctx, "Stale analysis request, dropping",
			"symbol", ev.Symbol, "correlation_id", corrID)
		return
	}

	if err := w.sem.Acquire(ctx, 1); err != nil {
		return
	}
	go func() {
		defer w.sem.Release(1)
		w.analyze(ctx, ev.Symbol, corrID)
	}()
}

func (w *AnalysisWorker) analyze(ctx context.Context, symbol, corrID string) {
	ctx, span := trace.StartSpan(ctx, "pipeline.analyze")
	defer span.End()

	logger.Info(ctx, "Fetching analysis data", "symbol", symbol, "correlation_id", corrID)

	fctx := ctx
	if w.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, w.fetchTimeout)
		defer cancel()
	}

	report, err := w.fetcher.FetchAndSummarize(fctx, symbol)
	if err != nil {
		w.fail(ctx, symbol, corrID, err)
		return
	}

	w.reg.Advance(ctx, corrID, registry.StageConsult)
	w.bus.Publish(ctx, types.Event{
		Kind:          types.ReportReady,
		Symbol:        symbol,
		CorrelationID: corrID,
		Report:        report,
	})
	logger.Info(ctx, "Report ready, queued for consultation", "symbol", symbol, "correlation_id", corrID)
}

func (w *AnalysisWorker) fail(ctx context.Context, symbol, corrID string, err error) {
	if errors.Is(err, interfaces.ErrPermanent) {
		logger.ErrorWithErr(ctx, "Permanent fetch failure", err, "symbol", symbol, "correlation_id", corrID)
		if entry, ok := w.reg.Exhaust(ctx, corrID); ok {
			w.publishTerminal(ctx, symbol, corrID, entry.Requesters, err)
		}
		return
	}

	dec := w.reg.RecordFailure(ctx, corrID, registry.StageFetch)
	switch {
	case !dec.Known:
		// Stale event, already logged by the registry.
	case dec.Retry:
		logger.Warn(ctx, "Fetch failed, retrying after backoff",
			"symbol", symbol, "correlation_id", corrID, "delay", dec.Delay.String(), "error", err)
		w.republishAfter(ctx, dec.Delay, types.Event{
			Kind:          types.AnalysisRequested,
			Symbol:        symbol,
			CorrelationID: corrID,
		})
	case dec.Exhausted:
		logger.ErrorWithErr(ctx, "Fetch retries exhausted", err, "symbol", symbol, "correlation_id", corrID)
		w.publishTerminal(ctx, symbol, corrID, dec.Entry.Requesters, err)
	}
}

func (w *AnalysisWorker) publishTerminal(ctx context.Context, symbol, corrID string, requesters []string, err error) {
	w.bus.Publish(ctx, types.Event{
		Kind:          types.ConsultationFailed,
		Symbol:        symbol,
		CorrelationID: corrID,
		Failure: &types.Failure{
			Stage:      string(registry.StageFetch),
			Err:        err.Error(),
			Requesters: requesters,
		},
	})
}

func (w *AnalysisWorker) republishAfter(ctx context.Context, delay time.Duration, ev types.Event) {
	select {
	case <-time.After(delay):
		w.bus.Publish(ctx, ev)
	case <-ctx.Done():
	}
}
