// Package consult is the AI-consultation collaborator: it hands an
// analysis report to a model and returns the structured recommendation.
package consult

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"stock-scout/internal/interfaces"
	"stock-scout/internal/store"
	"stock-scout/internal/types"
)

// ClaudeConsultant consults Anthropic Claude. Calls are paced client-side;
// provider 429s still surface as a throttled failure class so the pipeline
// backs off on the longer consultation ceiling.
type ClaudeConsultant struct {
	cfg     *store.Config
	client  anthropic.Client
	limiter *rate.Limiter
	timeout time.Duration
}

var _ interfaces.Consultant = (*ClaudeConsultant)(nil)

func NewClaudeConsultant(cfg *store.Config) (*ClaudeConsultant, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY missing")
	}

	model := cfg.LLM.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
		cfg.LLM.Model = model
	}

	return &ClaudeConsultant{
		cfg:     cfg,
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.LLM.RatePerMin)), 1),
		timeout: time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	}, nil
}

func (c *ClaudeConsultant) Consult(ctx context.Context, report *types.Report) (*types.Recommendation, error) {
	if report == nil || report.Document == "" {
		return nil, fmt.Errorf("empty report: %w", interfaces.ErrPermanent)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.LLM.Model),
		MaxTokens: int64(c.cfg.LLM.MaxTokens),
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(report.Document))),
		},
	}
	if c.cfg.LLM.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(c.cfg.LLM.Temperature))
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicErr(err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, fmt.Errorf("empty model response: %w", interfaces.ErrPermanent)
	}

	return parseRecommendation(report.Symbol, text)
}

func classifyAnthropicErr(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("claude: %v: %w", err, interfaces.ErrThrottled)
		case apierr.StatusCode == http.StatusUnauthorized || apierr.StatusCode == http.StatusForbidden:
			return fmt.Errorf("claude: %v: %w", err, interfaces.ErrPermanent)
		case apierr.StatusCode >= 400 && apierr.StatusCode < 500:
			return fmt.Errorf("claude: %v: %w", err, interfaces.ErrPermanent)
		}
	}
	return fmt.Errorf("claude: %w", err)
}
