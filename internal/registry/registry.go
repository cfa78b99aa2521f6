// Package registry tracks in-flight analysis work. It is the single source
// of truth for "is this symbol currently being processed" and owns the
// shared retry/backoff bookkeeping for both pipeline stages.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"stock-scout/internal/logger"
	"stock-scout/internal/types"
)

// Stage names a pipeline stage for attempt accounting.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageConsult Stage = "consult"
)

// RetryPolicy bounds retries for one stage. Delay for the n-th failure is
// Base << (n-1), capped at Max.
type RetryPolicy struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

// Entry is an immutable snapshot of one in-flight request.
type Entry struct {
	Symbol        string
	CorrelationID string
	Stage         Stage
	Source        types.Source
	Requesters    []string
	Attempts      map[Stage]int
	LastAttempt   time.Time
	AdmittedAt    time.Time
}

type entry struct {
	symbol        string
	correlationID string
	stage         Stage
	source        types.Source
	requesters    []string
	attempts      map[Stage]int
	lastAttempt   time.Time
	admittedAt    time.Time
}

func (e *entry) snapshot() Entry {
	attempts := make(map[Stage]int, len(e.attempts))
	for k, v := range e.attempts {
		attempts[k] = v
	}
	return Entry{
		Symbol:        e.symbol,
		CorrelationID: e.correlationID,
		Stage:         e.stage,
		Source:        e.source,
		Requesters:    append([]string(nil), e.requesters...),
		Attempts:      attempts,
		LastAttempt:   e.lastAttempt,
		AdmittedAt:    e.admittedAt,
	}
}

// Admission is the result of TryAdmit.
type Admission struct {
	Admitted      bool
	CorrelationID string // new id when admitted, existing id when coalesced
}

// Decision is the result of RecordFailure.
type Decision struct {
	// Known is false when the correlation id no longer exists; the caller
	// treats the event as stale and drops it.
	Known     bool
	Retry     bool
	Delay     time.Duration
	Exhausted bool
	// Entry holds the removed entry snapshot when Exhausted.
	Entry Entry
}

// Registry guards every operation with one mutex; admit, advance,
// recordFailure and release are each atomic with respect to concurrent
// callers.
type Registry struct {
	mu       sync.Mutex
	bySymbol map[string]*entry
	byCorr   map[string]*entry
	policies map[Stage]RetryPolicy
}

func New(policies map[Stage]RetryPolicy) *Registry {
	return &Registry{
		bySymbol: make(map[string]*entry),
		byCorr:   make(map[string]*entry),
		policies: policies,
	}
}

// TryAdmit admits symbol for processing or coalesces the request into the
// existing in-flight entry. A coalesced requester is remembered so every
// originator receives the eventual outcome. At most one entry per symbol
// exists at any time.
func (r *Registry) TryAdmit(ctx context.Context, symbol string, source types.Source, requester string) Admission {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.bySymbol[symbol]; ok {
		if requester != "" && !contains(existing.requesters, requester) {
			existing.requesters = append(existing.requesters, requester)
		}
		logger.Debug(ctx, "Request coalesced into in-flight entry",
			"symbol", symbol, "correlation_id", existing.correlationID)
		return Admission{Admitted: false, CorrelationID: existing.correlationID}
	}

	e := &entry{
		symbol:        symbol,
		correlationID: uuid.NewString(),
		stage:         StageFetch,
		source:        source,
		attempts:      make(map[Stage]int),
		admittedAt:    time.Now(),
	}
	if requester != "" {
		e.requesters = append(e.requesters, requester)
	}
	r.bySymbol[symbol] = e
	r.byCorr[e.correlationID] = e
	return Admission{Admitted: true, CorrelationID: e.correlationID}
}

// Advance transitions an entry to a new stage. An unknown correlation id is
// a stale event: logged, never fatal.
func (r *Registry) Advance(ctx context.Context, correlationID string, stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byCorr[correlationID]
	if !ok {
		logger.Warn(ctx, "Advance for unknown correlation id, dropping",
			"correlation_id", correlationID, "stage", string(stage))
		return
	}
	e.stage = stage
}

// RecordFailure increments the stage attempt counter and decides between a
// backoff retry and a terminal failure. On exhaustion the entry is removed
// and its snapshot returned so the caller can surface the failure to the
// original requesters.
func (r *Registry) RecordFailure(ctx context.Context, correlationID string, stage Stage) Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byCorr[correlationID]
	if !ok {
		logger.Warn(ctx, "Failure for unknown correlation id, dropping",
			"correlation_id", correlationID, "stage", string(stage))
		return Decision{}
	}

	e.attempts[stage]++
	e.lastAttempt = time.Now()
	attempt := e.attempts[stage]

	policy := r.policies[stage]
	if attempt >= policy.MaxAttempts {
		snap := e.snapshot()
		delete(r.bySymbol, e.symbol)
		delete(r.byCorr, e.correlationID)
		return Decision{Known: true, Exhausted: true, Entry: snap}
	}

	return Decision{Known: true, Retry: true, Delay: backoff(policy, attempt)}
}

// Exhaust removes an entry immediately, bypassing retries. Used for
// permanent failures that are pointless to repeat.
func (r *Registry) Exhaust(ctx context.Context, correlationID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byCorr[correlationID]
	if !ok {
		logger.Warn(ctx, "Exhaust for unknown correlation id, dropping",
			"correlation_id", correlationID)
		return Entry{}, false
	}
	snap := e.snapshot()
	delete(r.bySymbol, e.symbol)
	delete(r.byCorr, e.correlationID)
	return snap, true
}

// Release removes an entry on terminal success and returns its snapshot.
func (r *Registry) Release(ctx context.Context, correlationID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byCorr[correlationID]
	if !ok {
		logger.Warn(ctx, "Release for unknown correlation id, dropping",
			"correlation_id", correlationID)
		return Entry{}, false
	}
	snap := e.snapshot()
	delete(r.bySymbol, e.symbol)
	delete(r.byCorr, e.correlationID)
	return snap, true
}

// InFlight reports whether symbol currently has an entry.
func (r *Registry) InFlight(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.bySymbol[symbol]
	return ok
}

// Snapshot returns a copy of the entry for a correlation id.
func (r *Registry) Snapshot(correlationID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byCorr[correlationID]
	if !ok {
		return Entry{}, false
	}
	return e.snapshot(), true
}

func backoff(policy RetryPolicy, attempt int) time.Duration {
	d := policy.Base << (attempt - 1)
	if policy.Max > 0 && d > policy.Max {
		d = policy.Max
	}
	return d
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
