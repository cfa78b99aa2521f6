package notify

import (
	"fmt"
	"strings"

	"stock-scout/internal/types"
)

// escapeHTML escapes the characters Telegram's HTML parse mode cares about.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "• " + escapeHTML(item)
	}
	return strings.Join(lines, "\n")
}

func formatConditions(conditions []types.Condition) string {
	if len(conditions) == 0 {
		return "None specified"
	}
	lines := make([]string, 0, len(conditions))
	for _, c := range conditions {
		if c.Description != "" {
			lines = append(lines, "• "+escapeHTML(c.Description))
			continue
		}
		lines = append(lines, fmt.Sprintf("• %s %s %v",
			escapeHTML(c.Indicator), escapeHTML(c.Operator), c.Value))
	}
	return strings.Join(lines, "\n")
}

func formatPriceLevel(level types.PriceLevel) string {
	if level.Price == 0 {
		return "N/A"
	}
	if level.Percentage != 0 {
		return fmt.Sprintf("%.2f (%.1f%%)", level.Price, level.Percentage)
	}
	return fmt.Sprintf("%.2f", level.Price)
}

func formatProfitTarget(target types.ProfitTarget) string {
	var lines []string
	if target.Primary != nil {
		lines = append(lines, "Primary: "+formatPriceLevel(*target.Primary))
	}
	if target.Secondary != nil {
		lines = append(lines, "Secondary: "+formatPriceLevel(*target.Secondary))
	}
	if len(lines) == 0 {
		return "N/A"
	}
	return strings.Join(lines, "\n")
}

func formatEnterStrategy(plan types.EnterPlan) string {
	var parts []string
	if plan.Price != "" {
		parts = append(parts, "<b>Price:</b> "+escapeHTML(plan.Price))
	}
	if plan.Timing != "" {
		parts = append(parts, "<b>Timing:</b> "+escapeHTML(plan.Timing))
	}
	if len(plan.Conditions) > 0 {
		parts = append(parts, "<b>Conditions:</b>\n"+formatConditions(plan.Conditions))
	}
	if len(parts) == 0 {
		return "N/A"
	}
	return strings.Join(parts, "\n")
}

func formatExitStrategy(plan types.ExitPlan) string {
	var parts []string
	parts = append(parts, "<b>Profit Target:</b>\n"+formatProfitTarget(plan.ProfitTarget))
	parts = append(parts, "<b>Stop Loss:</b> "+formatPriceLevel(plan.StopLoss))
	if plan.TimeHorizon != "" {
		parts = append(parts, "<b>Time Horizon:</b> "+escapeHTML(plan.TimeHorizon))
	}
	if len(plan.Conditions) > 0 {
		parts = append(parts, "<b>Conditions:</b>\n"+formatConditions(plan.Conditions))
	}
	return strings.Join(parts, "\n")
}

// FormatRecommendation renders a recommendation as a Telegram HTML message.
func FormatRecommendation(rec *types.Recommendation) string {
	if rec == nil {
		return "No analysis results available."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>📊 %s Analysis</b>\n\n", escapeHTML(rec.Symbol))
	fmt.Fprintf(&b, "<b>Rating:</b> %d/100\n", rec.Rating)
	fmt.Fprintf(&b, "<b>Confidence:</b> %d/5\n\n", rec.Confidence)
	fmt.Fprintf(&b, "<b>Reasoning:</b>\n%s\n\n", escapeHTML(rec.Reasoning))
	fmt.Fprintf(&b, "<b>Bullish Factors:</b>\n%s\n\n", formatList(rec.BullishFactors))
	fmt.Fprintf(&b, "<b>Bearish Factors:</b>\n%s\n\n", formatList(rec.BearishFactors))
	if rec.MacroImpact != "" {
		fmt.Fprintf(&b, "<b>Macro Impact:</b>\n%s\n\n", escapeHTML(rec.MacroImpact))
	}
	fmt.Fprintf(&b, "<b>🎯 Entry Strategy:</b>\n%s\n\n", formatEnterStrategy(rec.EnterStrategy))
	fmt.Fprintf(&b, "<b>🚪 Exit Strategy:</b>\n%s", formatExitStrategy(rec.ExitStrategy))
	return b.String()
}

// FormatFailure renders a terminal pipeline failure for the requester.
func FormatFailure(symbol, stage, errText string) string {
	return fmt.Sprintf("⚠️ Analysis for <b>%s</b> failed (%s stage): %s",
		escapeHTML(symbol), escapeHTML(stage), escapeHTML(errText))
}

// FormatPortfolio renders the stored high-quality recommendations.
func FormatPortfolio(recs []types.Recommendation, minRating int) string {
	if len(recs) == 0 {
		return fmt.Sprintf("No stored recommendations with rating ≥ %d.", minRating)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>📁 Portfolio (rating ≥ %d)</b>\n", minRating)
	for _, rec := range recs {
		fmt.Fprintf(&b, "\n• <b>%s</b> — %d/100, confidence %d/5 (%s)",
			escapeHTML(rec.Symbol), rec.Rating, rec.Confidence,
			rec.CreatedAt.Format("2006-01-02"))
	}
	return b.String()
}
