package pipeline

import (
	"sync"
	"time"
)

// Watchlist is the ordered set of symbols subject to periodic re-analysis.
// Selection walks the list in insertion order and skips symbols scanned
// within the cooldown window; ranking by rating is deliberately left to the
// sentiment source that feeds additions.
type Watchlist struct {
	mu          sync.Mutex
	order       []string
	lastChecked map[string]time.Time
	cooldown    time.Duration
}

func NewWatchlist(symbols []string, cooldown time.Duration) *Watchlist {
	w := &Watchlist{
		lastChecked: make(map[string]time.Time),
		cooldown:    cooldown,
	}
	w.Add(symbols...)
	return w
}

// Add appends symbols not already present, preserving insertion order.
func (w *Watchlist) Add(symbols ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range symbols {
		if _, ok := w.lastChecked[s]; ok {
			continue
		}
		w.lastChecked[s] = time.Time{}
		w.order = append(w.order, s)
	}
}

// Pick returns up to n cooled-down symbols, skipping any for which skip
// reports true (symbols already in flight), and stamps them as checked.
func (w *Watchlist) Pick(now time.Time, n int, skip func(string) bool) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	picked := make([]string, 0, n)
	for _, s := range w.order {
		if len(picked) >= n {
			break
		}
		last := w.lastChecked[s]
		if !last.IsZero() && now.Sub(last) < w.cooldown {
			continue
		}
		if skip != nil && skip(s) {
			continue
		}
		w.lastChecked[s] = now
		picked = append(picked, s)
	}
	return picked
}

// Symbols returns the current list in order.
func (w *Watchlist) Symbols() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.order...)
}
