package interfaces

import (
	"context"

	"stock-scout/internal/types"
)

// Fetcher is the data/summarization collaborator. Implementations must be
// safe to call repeatedly for the same correlation id.
type Fetcher interface {
	FetchAndSummarize(ctx context.Context, symbol string) (*types.Report, error)
}

// Consultant is the AI-consultation collaborator.
type Consultant interface {
	Consult(ctx context.Context, report *types.Report) (*types.Recommendation, error)
}

// Audience selects who a notification goes to.
type Audience struct {
	Requester string // direct recipient; empty means broadcast
	Broadcast bool
}

// Notifier delivers human-readable messages.
type Notifier interface {
	Notify(ctx context.Context, aud Audience, message string) error
}

// RecommendationStore is the persistence collaborator. Inserts are
// append-only and safe under concurrent writers.
type RecommendationStore interface {
	InsertRecommendation(ctx context.Context, rec *types.Recommendation) error
	QueryByThreshold(ctx context.Context, minRating int) ([]types.Recommendation, error)
}

// CommandTransport yields parsed inbound chat commands.
type CommandTransport interface {
	Commands(ctx context.Context) <-chan types.Command
}

// TrendingSource lists symbols currently trending on social sentiment,
// highest-rated first.
type TrendingSource interface {
	Trending(ctx context.Context, n int) ([]string, error)
}

// ResultsJournal records every completed consultation, regardless of rating.
type ResultsJournal interface {
	Append(ctx context.Context, rec *types.Recommendation) error
}
