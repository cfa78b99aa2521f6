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

// ConsultWorker consumes ReportReady events and runs the AI-consultation
// collaborator. The consultation stage shares the registry's retry
// semantics with the analysis stage but is configured with a longer backoff
// ceiling, because provider throttling should not be hammered at the same
// cadence as a flaky network call.
type ConsultWorker struct {
	bus        *bus.Bus
	reg        *registry.Registry
	consultant interfaces.Consultant
	sem        *semaphore.Weighted
	events     <-chan types.Event
}

// NewConsultWorker subscribes immediately so reports published before Run is
// scheduled queue up instead of finding no subscriber.
func NewConsultWorker(b *bus.Bus, reg *registry.Registry, consultant interfaces.Consultant, concurrency int) *ConsultWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ConsultWorker{
		bus:        b,
		reg:        reg,
		consultant: consultant,
		sem:        semaphore.NewWeighted(int64(concurrency)),
		events:     b.Subscribe(types.ReportReady),
	}
}

func (w *ConsultWorker) Run(ctx context.Context) {
	logger.Info(ctx, "Consult worker started")
	for {
		select {
		case ev, ok := <-w.events:
			if !ok {
				logger.Info(ctx, "Consult worker stopped")
				return
			}
			w.handle(ctx, ev)
		case <-ctx.Done():
			logger.Info(ctx, "Consult worker stopped")
			return
		}
	}
}

func (w *ConsultWorker) handle(ctx context.Context, ev types.Event) {
	if ev.Report == nil {
		logger.Error(ctx, "ReportReady event without report payload", "symbol", ev.Symbol)
		return
	}
	if _, ok := w.reg.Snapshot(ev.CorrelationID); !ok {
		logger.Warn(ctx, "Stale report, dropping",
			"symbol", ev.Symbol, "correlation_id", ev.CorrelationID)
		return
	}
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return
	}
	go func() {
		defer w.sem.Release(1)
		w.consult(ctx, ev)
	}()
}

func (w *ConsultWorker) consult(ctx context.Context, ev types.Event) {
	ctx, span := trace.StartSpan(ctx, "pipeline.consult")
	defer span.End()

	logger.Info(ctx, "Submitting consultation", "symbol", ev.Symbol, "correlation_id", ev.CorrelationID)

	rec, err := w.consultant.Consult(ctx, ev.Report)
	if err != nil {
		w.fail(ctx, ev, err)
		return
	}

	logger.Consultation(ctx, ev.Symbol, rec.Rating, rec.Confidence, rec.Reasoning,
		"correlation_id", ev.CorrelationID)
	w.bus.Publish(ctx, types.Event{
		Kind:           types.ConsultationComplete,
		Symbol:         ev.Symbol,
		CorrelationID:  ev.CorrelationID,
		Recommendation: rec,
	})
}

func (w *ConsultWorker) fail(ctx context.Context, ev types.Event, err error) {
	if errors.Is(err, interfaces.ErrPermanent) {
		logger.ErrorWithErr(ctx, "Permanent consultation failure", err,
			"symbol", ev.Symbol, "correlation_id", ev.CorrelationID)
		if entry, ok := w.reg.Exhaust(ctx, ev.CorrelationID); ok {
			w.publishTerminal(ctx, ev, entry.Requesters, err)
		}
		return
	}

	dec := w.reg.RecordFailure(ctx, ev.CorrelationID, registry.StageConsult)
	switch {
	case !dec.Known:
	case dec.Retry:
		logger.Warn(ctx, "Consultation failed, retrying after backoff",
			"symbol", ev.Symbol, "correlation_id", ev.CorrelationID,
			"delay", dec.Delay.String(), "throttled", errors.Is(err, interfaces.ErrThrottled), "error", err)
		w.republishAfter(ctx, dec.Delay, ev)
	case dec.Exhausted:
		logger.ErrorWithErr(ctx, "Consultation retries exhausted", err,
			"symbol", ev.Symbol, "correlation_id", ev.CorrelationID)
		w.publishTerminal(ctx, ev, dec.Entry.Requesters, err)
	}
}

func (w *ConsultWorker) publishTerminal(ctx context.Context, ev types.Event, requesters []string, err error) {
	w.bus.Publish(ctx, types.Event{
		Kind:          types.ConsultationFailed,
		Symbol:        ev.Symbol,
		CorrelationID: ev.CorrelationID,
		Failure: &types.Failure{
			Stage:      string(registry.StageConsult),
			Err:        err.Error(),
			Requesters: requesters,
		},
	})
}

func (w *ConsultWorker) republishAfter(ctx context.Context, delay time.Duration, ev types.Event) {
	select {
	case <-time.After(delay):
		w.bus.Publish(ctx, ev)
	case <-ctx.Done():
	}
}
