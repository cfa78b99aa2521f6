package fetch

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"stock-scout/internal/logger"
)

// headlineScraper pulls recent headlines for a symbol. Headlines are a
// best-effort enrichment; scrape failures degrade the report, they never
// fail the fetch.
const finvizBaseURL = "https://finviz.com"

type headlineScraper struct {
	timeout time.Duration
	base    string
}

func newHeadlineScraper(timeout time.Duration, base string) *headlineScraper {
	if base == "" {
		base = finvizBaseURL
	}
	return &headlineScraper{timeout: timeout, base: base}
}

// Headlines scrapes Finviz's news table for a symbol.
func (s *headlineScraper) Headlines(ctx context.Context, symbol string, max int) []string {
	base := s.base
	c := colly.NewCollector(
		colly.AllowedDomains(domainOf(base)),
		colly.MaxDepth(1),
	)
	c.SetRequestTimeout(s.timeout)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	})

	var headlines []string
	c.OnHTML("table.fullview-news-outer tr", func(e *colly.HTMLElement) {
		if len(headlines) >= max {
			return
		}
		if h := headlineFromRow(e.DOM); h != "" {
			headlines = append(headlines, h)
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		logger.Warn(ctx, "Headline scrape error", "symbol", symbol, "url", r.Request.URL.String(), "error", err)
	})

	if err := c.Visit(base + "/quote.ashx?t=" + url.QueryEscape(symbol)); err != nil {
		logger.Warn(ctx, "Headline scrape failed", "symbol", symbol, "error", err)
		return nil
	}
	c.Wait()
	return headlines
}

// headlineFromRow extracts "title (outlet)" from one news table row.
func headlineFromRow(row *goquery.Selection) string {
	link := row.Find("a.tab-link-news")
	title := strings.TrimSpace(link.Text())
	if title == "" {
		return ""
	}
	if source := strings.TrimSpace(link.NextFiltered("span").Text()); source != "" {
		title = title + " " + source
	}
	return title
}

func domainOf(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
