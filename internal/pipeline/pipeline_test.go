package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"stock-scout/internal/bus"
	"stock-scout/internal/interfaces"
	"stock-scout/internal/registry"
	"stock-scout/internal/types"
)

// fakeFetcher returns canned reports or errors and counts calls per symbol.
type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(symbol string, call int) (*types.Report, error)
}

func newFakeFetcher(fn func(symbol string, call int) (*types.Report, error)) *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int), fn: fn}
}

func (f *fakeFetcher) FetchAndSummarize(ctx context.Context, symbol string) (*types.Report, error) {
	f.mu.Lock()
	f.calls[symbol]++
	call := f.calls[symbol]
	f.mu.Unlock()
	return f.fn(symbol, call)
}

func (f *fakeFetcher) callCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

type fakeConsultant struct {
	mu    sync.Mutex
	calls int
	fn    func(report *types.Report) (*types.Recommendation, error)
}

func (c *fakeConsultant) Consult(ctx context.Context, report *types.Report) (*types.Recommendation, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.fn(report)
}

func (c *fakeConsultant) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type sentMessage struct {
	aud interfaces.Audience
	msg string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (n *fakeNotifier) Notify(ctx context.Context, aud interfaces.Audience, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{aud: aud, msg: message})
	return nil
}

func (n *fakeNotifier) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *fakeNotifier) broadcasts() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMessage
	for _, s := range n.sent {
		if s.aud.Broadcast {
			out = append(out, s)
		}
	}
	return out
}

func (n *fakeNotifier) directsTo(requester string) []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMessage
	for _, s := range n.sent {
		if !s.aud.Broadcast && s.aud.Requester == requester {
			out = append(out, s)
		}
	}
	return out
}

type fakeStore struct {
	mu       sync.Mutex
	inserted []types.Recommendation
}

func (s *fakeStore) InsertRecommendation(ctx context.Context, rec *types.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, *rec)
	return nil
}

func (s *fakeStore) QueryByThreshold(ctx context.Context, minRating int) ([]types.Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Recommendation
	for _, r := range s.inserted {
		if r.Rating >= minRating {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) insertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inserted)
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []types.Recommendation
}

func (j *fakeJournal) Append(ctx context.Context, rec *types.Recommendation) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, *rec)
	return nil
}

func (j *fakeJournal) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// harness wires a full pipeline around fakes with fast retry policies.
type harness struct {
	bus      *bus.Bus
	reg      *registry.Registry
	notifier *fakeNotifier
	store    *fakeStore
	journal  *fakeJournal
}

func startPipeline(t *testing.T, fetcher interfaces.Fetcher, consultant interfaces.Consultant) *harness {
	t.Helper()

	h := &harness{
		bus: bus.New(16),
		reg: registry.New(map[registry.Stage]registry.RetryPolicy{
			registry.StageFetch:   {Base: 5 * time.Millisecond, Max: 20 * time.Millisecond, MaxAttempts: 3},
			registry.StageConsult: {Base: 5 * time.Millisecond, Max: 20 * time.Millisecond, MaxAttempts: 3},
		}),
		notifier: &fakeNotifier{},
		store:    &fakeStore{},
		journal:  &fakeJournal{},
	}

	ctx, cancel := context.WithCancel(context.Background())

	analysis := NewAnalysisWorker(h.bus, h.reg, fetcher, 4, time.Second)
	consult := NewConsultWorker(h.bus, h.reg, consultant, 2)
	dispatcher := NewDispatcher(h.bus, h.reg, h.store, h.notifier, h.journal, nil,
		NewWatchlist(nil, time.Hour), DispatcherConfig{
			RatingThreshold: 80,
			ScanTopN:        4,
			ScanInterval:    time.Hour,
		})

	var wg sync.WaitGroup
	for _, run := range []func(context.Context){analysis.Run, consult.Run, dispatcher.Run} {
		wg.Add(1)
		go func(f func(context.Context)) {
			defer wg.Done()
			f(ctx)
		}(run)
	}

	t.Cleanup(func() {
		cancel()
		h.bus.Close()
		wg.Wait()
	})
	return h
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func report(symbol string) *types.Report {
	return &types.Report{Symbol: symbol, Document: "summary for " + symbol}
}

func recommendation(symbol string, rating int) *types.Recommendation {
	return &types.Recommendation{
		Symbol:     symbol,
		Rating:     rating,
		Confidence: 4,
		Reasoning:  "test reasoning",
		CreatedAt:  time.Now(),
	}
}

func TestScheduledHighQualityFlow(t *testing.T) {
	fetcher := newFakeFetcher(func(symbol string, call int) (*types.Report, error) {
		return report(symbol), nil
	})
	consultant := &fakeConsultant{fn: func(r *types.Report) (*types.Recommendation, error) {
		return recommendation(r.Symbol, 84), nil
	}}
	h := startPipeline(t, fetcher, consultant)
	ctx := context.Background()

	h.bus.Publish(ctx, types.Event{
		Kind:   types.AnalysisRequested,
		Symbol: "MRVL",
		Source: types.SourceScheduled,
	})

	waitFor(t, "persisted recommendation", func() bool { return h.store.insertCount() == 1 })
	waitFor(t, "broadcast notification", func() bool { return len(h.notifier.broadcasts()) == 1 })

	if h.journal.count() != 1 {
		t.Errorf("Expected 1 journal entry, got %d", h.journal.count())
	}
	if got := h.notifier.sentCount(); got != 1 {
		t.Errorf("Expected no direct notifications for a scheduled request, got %d total", got)
	}
	waitFor(t, "registry release", func() bool { return !h.reg.InFlight("MRVL") })
}

func TestChatBelowThresholdFlow(t *testing.T) {
	fetcher := newFakeFetcher(func(symbol string, call int) (*types.Report, error) {
		return report(symbol), nil
	})
	consultant := &fakeConsultant{fn: func(r *types.Report) (*types.Recommendation, error) {
		return recommendation(r.Symbol, 76), nil
	}}
	h := startPipeline(t, fetcher, consultant)
	ctx := context.Background()

	h.bus.Publish(ctx, types.Event{
		Kind:      types.AnalysisRequested,
		Symbol:    "SMCI",
		Source:    types.SourceChatCommand,
		Requester: "user1",
	})

	waitFor(t, "direct notification", func() bool { return len(h.notifier.directsTo("user1")) == 1 })

	if h.store.insertCount() != 0 {
		t.Errorf("Expected below-threshold recommendation not to persist, got %d inserts", h.store.insertCount())
	}
	if got := len(h.notifier.broadcasts()); got != 0 {
		t.Errorf("Expected no broadcast for below-threshold recommendation, got %d", got)
	}
	if h.journal.count() != 1 {
		t.Errorf("Expected journal to record every consultation, got %d entries", h.journal.count())
	}
}

func TestFetchRetriesExhaust(t *testing.T) {
	fetchErr := errors.New("upstream unavailable")
	fetcher := newFakeFetcher(func(symbol string, call int) (*types.Report, error) {
		return nil, fetchErr
	})
	consultant := &fakeConsultant{fn: func(r *types.Report) (*types.Recommendation, error) {
		return recommendation(r.Symbol, 90), nil
	}}
	h := startPipeline(t, fetcher, consultant)
	ctx := context.Background()

	h.bus.Publish(ctx, types.Event{
		Kind:      types.AnalysisRequested,
		Symbol:    "XYZ",
		Source:    types.SourceChatCommand,
		Requester: "user1",
	})

	waitFor(t, "terminal failure notification", func() bool {
		return len(h.notifier.directsTo("user1")) == 1
	})

	if got := fetcher.callCount("XYZ"); got != 3 {
		t.Errorf("Expected 3 fetch attempts before exhaustion, got %d", got)
	}
	if consultant.callCount() != 0 {
		t.Errorf("Expected no consultation after fetch exhaustion, got %d", consultant.callCount())
	}
	if h.store.insertCount() != 0 || h.journal.count() != 0 {
		t.Error("Expected no persistence or journaling for a failed analysis")
	}
	if h.reg.InFlight("XYZ") {
		t.Error("Expected symbol to be free after exhaustion")
	}
}

func TestPermanentFetchFailureSkipsRetries(t *testing.T) {
	fetcher := newFakeFetcher(func(symbol string, call int) (*types.Report, error) {
		return nil, fmt.Errorf("unknown symbol %s: %w", symbol, interfaces.ErrPermanent)
	})
	consultant := &fakeConsultant{fn: func(r *types.Report) (*types.Recommendation, error) {
		return recommendation(r.Symbol, 90), nil
	}}
	h := startPipeline(t, fetcher, consultant)
	ctx := context.Background()

	h.bus.Publish(ctx, types.Event{
		Kind:      types.AnalysisRequested,
		Symbol:    "FAKE",
		Source:    types.SourceChatCommand,
		Requester: "user1",
	})

	waitFor(t, "terminal failure notification", func() bool {
		return len(h.notifier.directsTo("user1")) == 1
	})

	if got := fetcher.callCount("FAKE"); got != 1 {
		t.Errorf("Expected a single fetch attempt for a permanent failure, got %d", got)
	}
}

func TestCoalescedRequestersAllNotified(t *testing.T) {
	release := make(chan struct{})
	fetcher := newFakeFetcher(func(symbol string, call int) (*types.Report, error) {
		if symbol == "NVDA" {
			<-release
		}
		return report(symbol), nil
	})
	consultant := &fakeConsultant{fn: func(r *types.Report) (*types.Recommendation, error) {
		return recommendation(r.Symbol, 70), nil
	}}
	h := startPipeline(t, fetcher, consultant)
	ctx := context.Background()

	h.bus.Publish(ctx, types.Event{
		Kind:      types.AnalysisRequested,
		Symbol:    "NVDA",
		Source:    types.SourceChatCommand,
		Requester: "user1",
	})
	h.bus.Publish(ctx, types.Event{
		Kind:      types.AnalysisRequested,
		Symbol:    "NVDA",
		Source:    types.SourceChatCommand,
		Requester: "user2",
	})
	// The worker handles events in order, so once this sentinel is admitted
	// both NVDA requests have been processed and user2 has coalesced.
	h.bus.Publish(ctx, types.Event{
		Kind:   types.AnalysisRequested,
		Symbol: "ORDR",
		Source: types.SourceScheduled,
	})
	waitFor(t, "sentinel processed", func() bool { return fetcher.callCount("ORDR") == 1 })
	close(release)

	waitFor(t, "both requesters notified", func() bool {
		return len(h.notifier.directsTo("user1")) == 1 && len(h.notifier.directsTo("user2")) == 1
	})
	if got := fetcher.callCount("NVDA"); got != 1 {
		t.Errorf("Expected coalesced requests to share one fetch, got %d", got)
	}
}

func TestThrottledConsultationRetries(t *testing.T) {
	fetcher := newFakeFetcher(func(symbol string, call int) (*types.Report, error) {
		return report(symbol), nil
	})
	// First two calls throttle, third succeeds.
	var mu sync.Mutex
	calls := 0
	consultant := &fakeConsultant{fn: func(r *types.Report) (*types.Recommendation, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			return nil, fmt.Errorf("rate limited: %w", interfaces.ErrThrottled)
		}
		return recommendation(r.Symbol, 85), nil
	}}
	h := startPipeline(t, fetcher, consultant)
	ctx := context.Background()

	h.bus.Publish(ctx, types.Event{
		Kind:   types.AnalysisRequested,
		Symbol: "AVGO",
		Source: types.SourceScheduled,
	})

	waitFor(t, "recommendation persisted after retries", func() bool {
		return h.store.insertCount() == 1
	})
	if consultant.callCount() != 3 {
		t.Errorf("Expected 3 consultation attempts, got %d", consultant.callCount())
	}
	// Fetch ran once; retries republish the existing report.
	if got := fetcher.callCount("AVGO"); got != 1 {
		t.Errorf("Expected a single fetch across consult retries, got %d", got)
	}
}

func TestRequestPublishedBeforeWorkersRunIsDelivered(t *testing.T) {
	fetcher := newFakeFetcher(func(symbol string, call int) (*types.Report, error) {
		return report(symbol), nil
	})
	consultant := &fakeConsultant{fn: func(r *types.Report) (*types.Recommendation, error) {
		return recommendation(r.Symbol, 90), nil
	}}

	b := bus.New(16)
	reg := registry.New(map[registry.Stage]registry.RetryPolicy{
		registry.StageFetch:   {Base: 5 * time.Millisecond, Max: 20 * time.Millisecond, MaxAttempts: 3},
		registry.StageConsult: {Base: 5 * time.Millisecond, Max: 20 * time.Millisecond, MaxAttempts: 3},
	})
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	journal := &fakeJournal{}

	analysis := NewAnalysisWorker(b, reg, fetcher, 4, time.Second)
	consult := NewConsultWorker(b, reg, consultant, 2)
	dispatcher := NewDispatcher(b, reg, store, notifier, journal, nil,
		NewWatchlist(nil, time.Hour), DispatcherConfig{
			RatingThreshold: 80,
			ScanTopN:        4,
			ScanInterval:    time.Hour,
		})

	ctx, cancel := context.WithCancel(context.Background())

	// Published before any worker loop is running. Construction-time
	// subscriptions must queue the event instead of losing it.
	b.Publish(ctx, types.Event{
		Kind:   types.AnalysisRequested,
		Symbol: "MRVL",
		Source: types.SourceScheduled,
	})

	var wg sync.WaitGroup
	for _, run := range []func(context.Context){analysis.Run, consult.Run, dispatcher.Run} {
		wg.Add(1)
		go func(f func(context.Context)) {
			defer wg.Done()
			f(ctx)
		}(run)
	}
	t.Cleanup(func() {
		cancel()
		b.Close()
		wg.Wait()
	})

	waitFor(t, "persisted recommendation", func() bool { return store.insertCount() == 1 })
}

func TestCliBelowThresholdNotifiesOwner(t *testing.T) {
	fetcher := newFakeFetcher(func(symbol string, call int) (*types.Report, error) {
		return report(symbol), nil
	})
	consultant := &fakeConsultant{fn: func(r *types.Report) (*types.Recommendation, error) {
		return recommendation(r.Symbol, 70), nil
	}}
	h := startPipeline(t, fetcher, consultant)

	l := NewListener(h.bus, &fakeTransport{ch: make(chan types.Command)},
		h.notifier, h.store, "owner-chat", 80)
	l.EnqueueStartup(context.Background(), []string{"INTC"})

	waitFor(t, "owner notification", func() bool {
		return len(h.notifier.directsTo("owner-chat")) == 1
	})
	if h.store.insertCount() != 0 {
		t.Errorf("Expected below-threshold CLI result not to persist, got %d inserts", h.store.insertCount())
	}
	if got := len(h.notifier.broadcasts()); got != 0 {
		t.Errorf("Expected no broadcast for below-threshold CLI result, got %d", got)
	}
}

func TestCliTerminalFailureNotifiesOwner(t *testing.T) {
	fetcher := newFakeFetcher(func(symbol string, call int) (*types.Report, error) {
		return nil, fmt.Errorf("unknown symbol %s: %w", symbol, interfaces.ErrPermanent)
	})
	consultant := &fakeConsultant{fn: func(r *types.Report) (*types.Recommendation, error) {
		return recommendation(r.Symbol, 90), nil
	}}
	h := startPipeline(t, fetcher, consultant)

	l := NewListener(h.bus, &fakeTransport{ch: make(chan types.Command)},
		h.notifier, h.store, "owner-chat", 80)
	l.EnqueueStartup(context.Background(), []string{"FAKE"})

	waitFor(t, "owner failure notification", func() bool {
		return len(h.notifier.directsTo("owner-chat")) == 1
	})
	if msg := h.notifier.directsTo("owner-chat")[0].msg; !strings.Contains(msg, "FAKE") {
		t.Errorf("Expected failure message to name the symbol, got %q", msg)
	}
}

func TestStaleCompletionDropped(t *testing.T) {
	fetcher := newFakeFetcher(func(symbol string, call int) (*types.Report, error) {
		return report(symbol), nil
	})
	consultant := &fakeConsultant{fn: func(r *types.Report) (*types.Recommendation, error) {
		return recommendation(r.Symbol, 95), nil
	}}
	h := startPipeline(t, fetcher, consultant)
	ctx := context.Background()

	// A completion whose correlation id was never admitted must produce no
	// side effects.
	h.bus.Publish(ctx, types.Event{
		Kind:           types.ConsultationComplete,
		Symbol:         "GHOST",
		CorrelationID:  "no-such-id",
		Recommendation: recommendation("GHOST", 95),
	})

	time.Sleep(50 * time.Millisecond)
	if h.store.insertCount() != 0 {
		t.Errorf("Expected stale completion not to persist, got %d inserts", h.store.insertCount())
	}
	if h.notifier.sentCount() != 0 {
		t.Errorf("Expected stale completion not to notify, got %d messages", h.notifier.sentCount())
	}
	if h.journal.count() != 0 {
		t.Errorf("Expected stale completion not to journal, got %d entries", h.journal.count())
	}
}
