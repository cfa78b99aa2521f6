// Package sentiment collects trending symbols from social sources to feed
// the autonomous watchlist.
package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"stock-scout/internal/interfaces"
	"stock-scout/internal/logger"
)

// StocktwitsSource reads the Stocktwits trending API. The response is
// trending-rank ordered, so the first n symbols are the hottest.
type StocktwitsSource struct {
	endpoint string
	timeout  time.Duration
}

var _ interfaces.TrendingSource = (*StocktwitsSource)(nil)

func NewStocktwitsSource(timeout time.Duration) *StocktwitsSource {
	return &StocktwitsSource{
		endpoint: "https://api.stocktwits.com/api/2/trending/symbols.json",
		timeout:  timeout,
	}
}

type trendingResponse struct {
	Symbols []struct {
		Symbol string `json:"symbol"`
	} `json:"symbols"`
}

func (s *StocktwitsSource) Trending(ctx context.Context, n int) ([]string, error) {
	c := colly.NewCollector()
	c.SetRequestTimeout(s.timeout)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		r.Headers.Set("Accept", "application/json")
	})

	var symbols []string
	var parseErr error
	c.OnResponse(func(r *colly.Response) {
		var parsed trendingResponse
		if err := json.Unmarshal(r.Body, &parsed); err != nil {
			parseErr = fmt.Errorf("parse trending response: %w", err)
			return
		}
		for _, row := range parsed.Symbols {
			sym := strings.TrimSpace(row.Symbol)
			// Skip crypto and index tickers like BTC.X.
			if sym == "" || strings.Contains(sym, ".") {
				continue
			}
			symbols = append(symbols, sym)
			if len(symbols) >= n {
				break
			}
		}
	})

	if err := c.Visit(s.endpoint); err != nil {
		return nil, fmt.Errorf("fetch trending symbols: %w", err)
	}
	c.Wait()

	if parseErr != nil {
		return nil, parseErr
	}
	logger.Debug(ctx, "Trending symbols fetched", "count", len(symbols))
	return symbols, nil
}
