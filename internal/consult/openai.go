package consult

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"stock-scout/internal/interfaces"
	"stock-scout/internal/store"
	"stock-scout/internal/trace"
	"stock-scout/internal/types"
)

// OpenAIConsultant consults the OpenAI chat-completions API.
type OpenAIConsultant struct {
	cfg        *store.Config
	httpClient *http.Client
	limiter    *rate.Limiter
	endpoint   string
}

var _ interfaces.Consultant = (*OpenAIConsultant)(nil)

func NewOpenAIConsultant(cfg *store.Config) *OpenAIConsultant {
	endpoint := "https://api.openai.com/v1/chat/completions"
	if ep := os.Getenv("OPENAI_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	return &OpenAIConsultant{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.LLM.TimeoutSecs) * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.LLM.RatePerMin)), 1),
		endpoint:   endpoint,
	}
}

func (c *OpenAIConsultant) Consult(ctx context.Context, report *types.Report) (*types.Recommendation, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-call")
	defer span.End()

	if report == nil || report.Document == "" {
		return nil, fmt.Errorf("empty report: %w", interfaces.ErrPermanent)
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY missing: %w", interfaces.ErrPermanent)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body := map[string]any{
		"model": c.cfg.LLM.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt(report.Document)},
		},
		"temperature": c.cfg.LLM.Temperature,
		"max_tokens":  c.cfg.LLM.MaxTokens,
	}
	bb, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bb))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("openai http 429: %w", interfaces.ErrThrottled)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("openai http %d: %w", resp.StatusCode, interfaces.ErrPermanent)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("openai http %d", resp.StatusCode)
	}

	var r struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, err
	}
	if len(r.Choices) == 0 {
		return nil, errors.New("openai: no choices")
	}

	return parseRecommendation(report.Symbol, r.Choices[0].Message.Content)
}
