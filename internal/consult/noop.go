package consult

import (
	"context"
	"time"

	"stock-scout/internal/interfaces"
	"stock-scout/internal/types"
)

// NoopConsultant rates everything neutral. Used when no LLM provider is
// configured so the rest of the pipeline stays exercisable.
type NoopConsultant struct{}

var _ interfaces.Consultant = (*NoopConsultant)(nil)

func NewNoopConsultant() *NoopConsultant {
	return &NoopConsultant{}
}

func (c *NoopConsultant) Consult(_ context.Context, report *types.Report) (*types.Recommendation, error) {
	return &types.Recommendation{
		Symbol:     report.Symbol,
		Rating:     50,
		Confidence: 1,
		Reasoning:  "no LLM provider configured",
		CreatedAt:  time.Now(),
	}, nil
}
