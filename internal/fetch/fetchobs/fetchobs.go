package fetchobs

import (
	"context"
	"time"

	"stock-scout/internal/interfaces"
	"stock-scout/internal/logger"
	"stock-scout/internal/trace"
	"stock-scout/internal/types"
)

type observableFetcher struct {
	fetcher interfaces.Fetcher
}

var _ interfaces.Fetcher = (*observableFetcher)(nil)

func Wrap(f interfaces.Fetcher) interfaces.Fetcher {
	return &observableFetcher{fetcher: f}
}

func (of *observableFetcher) FetchAndSummarize(ctx context.Context, symbol string) (*types.Report, error) {
	ctx, span := trace.StartSpan(ctx, "fetch.FetchAndSummarize")
	defer span.End()

	start := time.Now()

	report, err := of.fetcher.FetchAndSummarize(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Fetch failed", err,
			"symbol", symbol,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Fetch completed",
		"symbol", symbol,
		"price", report.Price,
		"headlines", len(report.Headlines),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report, nil
}
