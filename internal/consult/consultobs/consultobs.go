package consultobs

import (
	"context"
	"time"

	"stock-scout/internal/interfaces"
	"stock-scout/internal/logger"
	"stock-scout/internal/trace"
	"stock-scout/internal/types"
)

type observableConsultant struct {
	consultant interfaces.Consultant
}

var _ interfaces.Consultant = (*observableConsultant)(nil)

func Wrap(c interfaces.Consultant) interfaces.Consultant {
	return &observableConsultant{consultant: c}
}

func (oc *observableConsultant) Consult(ctx context.Context, report *types.Report) (*types.Recommendation, error) {
	ctx, span := trace.StartSpan(ctx, "consult.Consult")
	defer span.End()

	start := time.Now()

	rec, err := oc.consultant.Consult(ctx, report)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Consultation failed", err,
			"symbol", report.Symbol,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Consultation returned",
		"symbol", report.Symbol,
		"rating", rec.Rating,
		"confidence", rec.Confidence,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rec, nil
}
