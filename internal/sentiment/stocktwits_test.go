package sentiment

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

const trendingJSON = `{
	"symbols": [
		{"symbol": "NVDA"},
		{"symbol": "BTC.X"},
		{"symbol": "SMCI"},
		{"symbol": ""},
		{"symbol": "MRVL"},
		{"symbol": "PLTR"}
	]
}`

func TestTrendingFiltersAndLimits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, trendingJSON)
	}))
	defer server.Close()

	s := NewStocktwitsSource(5 * time.Second)
	s.endpoint = server.URL + "/api/2/trending/symbols.json"

	symbols, err := s.Trending(context.Background(), 3)
	if err != nil {
		t.Fatalf("Trending failed: %v", err)
	}
	// Crypto and empty tickers are skipped; rank order is preserved.
	if !reflect.DeepEqual(symbols, []string{"NVDA", "SMCI", "MRVL"}) {
		t.Errorf("Expected [NVDA SMCI MRVL], got %v", symbols)
	}
}

func TestTrendingBadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	}))
	defer server.Close()

	s := NewStocktwitsSource(5 * time.Second)
	s.endpoint = server.URL

	if _, err := s.Trending(context.Background(), 3); err == nil {
		t.Error("Expected error for unparseable response")
	}
}
