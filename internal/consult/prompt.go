package consult

// System and user prompts for stock consultation. The model must answer
// with strict JSON matching the Recommendation schema.

const systemPrompt = `You are an expert stock analyst. You receive a structured analysis document ` +
	`with technical indicators, fundamentals and recent headlines, and you produce a disciplined, ` +
	`quantitative investment assessment. Use only numbers instead of verbal markers. ` +
	`Respond ONLY with compact JSON, no prose around it.`

const consultSchema = `{
  "rating": "0-100 integer where 0=strongest sell and 100=strongest buy",
  "confidence": "1-5 integer confidence in the rating",
  "reasoning": "concise summary of key factors driving the rating",
  "bullish_factors": ["3-5 specific reasons supporting a bullish case, with quantitative values"],
  "bearish_factors": ["3-5 specific reasons supporting a bearish case, with quantitative values"],
  "macro_impact": "how current macroeconomic conditions specifically affect this stock",
  "enter_strategy": {
    "price": "entry price or range",
    "timing": "entry timing guidance",
    "conditions": [{"indicator": "", "operator": "", "value": "", "description": ""}]
  },
  "exit_strategy": {
    "profit_target": {"primary": {"price": 0, "percentage": 0}, "secondary": {"price": 0, "percentage": 0}},
    "stop_loss": {"price": 0, "percentage": 0},
    "time_horizon": "holding period",
    "conditions": [{"indicator": "", "operator": "", "value": "", "description": ""}]
  }
}`

func userPrompt(document string) string {
	return "Schema:\n" + consultSchema + "\n\nAnalysis document:\n" + document +
		"\n\nRespond ONLY with compact JSON matching the schema."
}
