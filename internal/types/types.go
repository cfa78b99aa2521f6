package types

import (
	"regexp"
	"strings"
	"time"
)

// EventKind discriminates the closed set of pipeline events.
type EventKind int

const (
	AnalysisRequested EventKind = iota
	ReportReady
	ConsultationComplete
	ConsultationFailed
)

func (k EventKind) String() string {
	switch k {
	case AnalysisRequested:
		return "analysis_requested"
	case ReportReady:
		return "report_ready"
	case ConsultationComplete:
		return "consultation_complete"
	case ConsultationFailed:
		return "consultation_failed"
	}
	return "unknown"
}

// Source identifies what triggered an analysis request.
type Source int

const (
	SourceScheduled Source = iota
	SourceChatCommand
	SourceCliArgument
)

func (s Source) String() string {
	switch s {
	case SourceScheduled:
		return "scheduled"
	case SourceChatCommand:
		return "chat_command"
	case SourceCliArgument:
		return "cli_argument"
	}
	return "unknown"
}

// Direct reports whether the source is a user-initiated request whose
// requester must be notified regardless of rating.
func (s Source) Direct() bool {
	return s == SourceChatCommand || s == SourceCliArgument
}

// Event is the tagged union carried on the bus. Exactly one payload
// field is set, matching Kind.
type Event struct {
	Kind          EventKind
	Symbol        string
	CorrelationID string
	Source        Source
	Requester     string

	Report         *Report         // ReportReady
	Recommendation *Recommendation // ConsultationComplete
	Failure        *Failure        // ConsultationFailed
}

// Failure describes a terminal pipeline failure for one correlation id.
type Failure struct {
	Stage      string
	Err        string
	Requesters []string
}

// Report is the structured analysis document handed to consultation.
// Document holds the rendered YAML the model actually reads.
type Report struct {
	Symbol       string         `yaml:"symbol" json:"symbol"`
	CompanyName  string         `yaml:"company_name,omitempty" json:"company_name,omitempty"`
	Price        float64        `yaml:"price" json:"price"`
	MarketCap    string         `yaml:"market_cap,omitempty" json:"market_cap,omitempty"`
	Indicators   Indicators     `yaml:"indicators" json:"indicators"`
	Headlines    []string       `yaml:"headlines,omitempty" json:"headlines,omitempty"`
	Fundamentals map[string]any `yaml:"fundamentals,omitempty" json:"fundamentals,omitempty"`
	Macro        string         `yaml:"macro,omitempty" json:"macro,omitempty"`
	GeneratedAt  time.Time      `yaml:"generated_at" json:"generated_at"`
	Document     string         `yaml:"-" json:"-"`
}

type Indicators struct {
	SMA  map[int]float64 `yaml:"sma,omitempty" json:"sma,omitempty"`
	RSI  float64         `yaml:"rsi" json:"rsi"`
	MACD MACD            `yaml:"macd" json:"macd"`
	BB   Bands           `yaml:"bb" json:"bb"`
	ATR  float64         `yaml:"atr" json:"atr"`
}

type MACD struct {
	Line   float64 `yaml:"line" json:"line"`
	Signal float64 `yaml:"signal" json:"signal"`
}

type Bands struct {
	Middle float64 `yaml:"middle" json:"middle"`
	Upper  float64 `yaml:"upper" json:"upper"`
	Lower  float64 `yaml:"lower" json:"lower"`
}

// Recommendation is the structured consultation output. Immutable once created.
type Recommendation struct {
	Symbol         string    `json:"symbol" badgerhold:"index"`
	Rating         int       `json:"rating"`
	Confidence     int       `json:"confidence"` // ordinal 1-5
	Reasoning      string    `json:"reasoning"`
	BullishFactors []string  `json:"bullish_factors"`
	BearishFactors []string  `json:"bearish_factors"`
	MacroImpact    string    `json:"macro_impact"`
	EnterStrategy  EnterPlan `json:"enter_strategy"`
	ExitStrategy   ExitPlan  `json:"exit_strategy"`
	CreatedAt      time.Time `json:"created_at"`
}

type EnterPlan struct {
	Price      string      `json:"price,omitempty"`
	Timing     string      `json:"timing,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`
}

type ExitPlan struct {
	ProfitTarget ProfitTarget `json:"profit_target"`
	StopLoss     PriceLevel   `json:"stop_loss"`
	TimeHorizon  string       `json:"time_horizon,omitempty"`
	Conditions   []Condition  `json:"conditions,omitempty"`
}

type ProfitTarget struct {
	Primary   *PriceLevel `json:"primary,omitempty"`
	Secondary *PriceLevel `json:"secondary,omitempty"`
}

type PriceLevel struct {
	Price      float64 `json:"price"`
	Percentage float64 `json:"percentage,omitempty"`
}

type Condition struct {
	Indicator   string `json:"indicator,omitempty"`
	Operator    string `json:"operator,omitempty"`
	Value       any    `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
}

// Command is a parsed inbound chat command.
type Command struct {
	Name      string // "analyze" or "portfolio"
	Symbols   []string
	Requester string // chat id to answer on
}

// Candle is one OHLCV bar.
type Candle struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

var symbolRe = regexp.MustCompile(`^[A-Z]{1,6}$`)

// NormalizeSymbol upper-cases and validates a ticker symbol.
func NormalizeSymbol(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	return s, symbolRe.MatchString(s)
}
