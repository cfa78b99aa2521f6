// Package fetch is the data/summarization collaborator: it pulls market
// data, computes technical indicators, scrapes recent headlines and
// assembles the structured report consultation reads.
package fetch

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"stock-scout/internal/interfaces"
	"stock-scout/internal/logger"
	"stock-scout/internal/types"
)

// Config tunes the fetcher.
type Config struct {
	MaxHeadlines int
	NewsTimeout  time.Duration
	HTTPTimeout  time.Duration
	BaseURL      string // override for tests
	NewsBaseURL  string // override for tests
	Macro        string // macro-environment note included in every report
}

// Fetcher assembles analysis reports. Fetches are read-only against the
// upstream APIs, so repeating an attempt for the same correlation id
// accumulates no side effects.
type Fetcher struct {
	nasdaq  *nasdaqClient
	news    *headlineScraper
	maxNews int
	macro   string
}

var _ interfaces.Fetcher = (*Fetcher)(nil)

func New(cfg Config) *Fetcher {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.NewsTimeout == 0 {
		cfg.NewsTimeout = 30 * time.Second
	}
	if cfg.MaxHeadlines == 0 {
		cfg.MaxHeadlines = 15
	}
	return &Fetcher{
		nasdaq:  newNasdaqClient(cfg.HTTPTimeout, cfg.BaseURL),
		news:    newHeadlineScraper(cfg.NewsTimeout, cfg.NewsBaseURL),
		maxNews: cfg.MaxHeadlines,
		macro:   cfg.Macro,
	}
}

func (f *Fetcher) FetchAndSummarize(ctx context.Context, symbol string) (*types.Report, error) {
	price, name, marketCap, err := f.nasdaq.quote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", symbol, err)
	}

	candles, err := f.nasdaq.candles(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("candles %s: %w", symbol, err)
	}

	fundamentals, err := f.nasdaq.summary(ctx, symbol)
	if err != nil {
		// Fundamentals are enrichment; keep going with what we have.
		logger.Warn(ctx, "Fundamentals unavailable", "symbol", symbol, "error", err)
	}

	report := &types.Report{
		Symbol:       symbol,
		CompanyName:  name,
		Price:        price,
		MarketCap:    marketCap,
		Indicators:   indicators(candles),
		Headlines:    f.news.Headlines(ctx, symbol, f.maxNews),
		Fundamentals: fundamentals,
		Macro:        f.macro,
		GeneratedAt:  time.Now(),
	}

	doc, err := yaml.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("render report %s: %w", symbol, err)
	}
	report.Document = string(doc)
	return report, nil
}

func indicators(candles []types.Candle) types.Indicators {
	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	var ind types.Indicators
	ind.SMA = map[int]float64{}
	for _, n := range []int{20, 50, 200} {
		if v := sma(closes, n); v == v { // skip NaN
			ind.SMA[n] = v
		}
	}
	ind.RSI = rsi(closes, 14)
	ind.MACD.Line, ind.MACD.Signal = macd(closes)
	ind.BB.Middle, ind.BB.Upper, ind.BB.Lower = bollinger(closes, 20, 2)
	ind.ATR = atr(highs, lows, closes, 14)
	return ind
}
