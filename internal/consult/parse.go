package consult

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"stock-scout/internal/interfaces"
	"stock-scout/internal/types"
)

// parseRecommendation locates a JSON object in the model output and
// unmarshals it. Model output that carries no parseable recommendation is
// a permanent failure; repeating the call with the same report rarely
// fixes it and the registry should not burn retries on it.
func parseRecommendation(symbol, text string) (*types.Recommendation, error) {
	t := strings.TrimSpace(text)

	// Models wrap JSON in code fences more often than not.
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```json")
		t = strings.TrimPrefix(t, "```")
		if i := strings.LastIndex(t, "```"); i >= 0 {
			t = t[:i]
		}
		t = strings.TrimSpace(t)
	}

	if !strings.HasPrefix(t, "{") {
		start := strings.Index(t, "{")
		end := strings.LastIndex(t, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("no JSON object in model output: %w", interfaces.ErrPermanent)
		}
		t = t[start : end+1]
	}

	var rec types.Recommendation
	if err := json.Unmarshal([]byte(t), &rec); err != nil {
		return nil, fmt.Errorf("unparseable model output: %v: %w", err, interfaces.ErrPermanent)
	}

	rec.Symbol = symbol
	rec.CreatedAt = time.Now()
	normalize(&rec)
	return &rec, nil
}

func normalize(rec *types.Recommendation) {
	if rec.Rating < 0 {
		rec.Rating = 0
	}
	if rec.Rating > 100 {
		rec.Rating = 100
	}
	if rec.Confidence < 1 {
		rec.Confidence = 1
	}
	if rec.Confidence > 5 {
		rec.Confidence = 5
	}
}
