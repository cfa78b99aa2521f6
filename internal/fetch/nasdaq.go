package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stock-scout/internal/interfaces"
	"stock-scout/internal/types"
)

const nasdaqBaseURL = "https://api.nasdaq.com"

// nasdaqClient talks to the public Nasdaq quote/chart API.
type nasdaqClient struct {
	httpClient *http.Client
	baseURL    string
}

func newNasdaqClient(timeout time.Duration, baseURL string) *nasdaqClient {
	if baseURL == "" {
		baseURL = nasdaqBaseURL
	}
	return &nasdaqClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

func (c *nasdaqClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	// The API rejects default Go client headers.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("nasdaq %s: %w", path, interfaces.ErrPermanent)
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("nasdaq http %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type quoteResponse struct {
	Data *struct {
		CompanyName string `json:"companyName"`
		PrimaryData struct {
			LastSalePrice string `json:"lastSalePrice"`
		} `json:"primaryData"`
		KeyStats struct {
			MarketCap struct {
				Value string `json:"value"`
			} `json:"MarketCap"`
		} `json:"keyStats"`
	} `json:"data"`
	Status struct {
		RCode int `json:"rCode"`
	} `json:"status"`
}

type summaryResponse struct {
	Data *struct {
		SummaryData map[string]struct {
			Label string `json:"label"`
			Value any    `json:"value"`
		} `json:"summaryData"`
	} `json:"data"`
}

type chartResponse struct {
	Data *struct {
		Chart []struct {
			Z struct {
				High   string `json:"high"`
				Low    string `json:"low"`
				Open   string `json:"open"`
				Close  string `json:"close"`
				Volume string `json:"volume"`
				Date   string `json:"dateTime"`
			} `json:"z"`
		} `json:"chart"`
	} `json:"data"`
}

// quote returns current price, company name and market cap. An empty data
// block means the symbol is unknown, which is not worth retrying.
func (c *nasdaqClient) quote(ctx context.Context, symbol string) (price float64, name, marketCap string, err error) {
	var parsed quoteResponse
	path := fmt.Sprintf("/api/quote/%s/info?assetclass=stocks", symbol)
	if err = c.get(ctx, path, &parsed); err != nil {
		return 0, "", "", err
	}
	if parsed.Data == nil {
		return 0, "", "", fmt.Errorf("unknown symbol %s: %w", symbol, interfaces.ErrPermanent)
	}
	price = parseMoney(parsed.Data.PrimaryData.LastSalePrice)
	return price, parsed.Data.CompanyName, parsed.Data.KeyStats.MarketCap.Value, nil
}

// summary returns the fundamentals table for a symbol.
func (c *nasdaqClient) summary(ctx context.Context, symbol string) (map[string]any, error) {
	var parsed summaryResponse
	path := fmt.Sprintf("/api/quote/%s/summary?assetclass=stocks", symbol)
	if err := c.get(ctx, path, &parsed); err != nil {
		return nil, err
	}
	if parsed.Data == nil {
		return nil, nil
	}
	out := make(map[string]any, len(parsed.Data.SummaryData))
	for key, row := range parsed.Data.SummaryData {
		label := row.Label
		if label == "" {
			label = key
		}
		out[label] = row.Value
	}
	return out, nil
}

// candles returns up to a year of daily bars, oldest first.
func (c *nasdaqClient) candles(ctx context.Context, symbol string) ([]types.Candle, error) {
	var parsed chartResponse
	to := time.Now()
	from := to.AddDate(-1, 0, 0)
	path := fmt.Sprintf("/api/quote/%s/chart?assetclass=stocks&fromdate=%s&todate=%s",
		symbol, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err := c.get(ctx, path, &parsed); err != nil {
		return nil, err
	}
	if parsed.Data == nil {
		return nil, nil
	}
	candles := make([]types.Candle, 0, len(parsed.Data.Chart))
	for _, row := range parsed.Data.Chart {
		ts, _ := time.Parse("2006-01-02", row.Z.Date)
		candles = append(candles, types.Candle{
			Ts:    ts.Unix(),
			Open:  parseMoney(row.Z.Open),
			High:  parseMoney(row.Z.High),
			Low:   parseMoney(row.Z.Low),
			Close: parseMoney(row.Z.Close),
			Vol:   parseMoney(row.Z.Volume),
		})
	}
	return candles, nil
}

func parseMoney(s string) float64 {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
