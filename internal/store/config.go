package store

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	RatingThreshold int      `yaml:"rating_threshold"`
	Watchlist       []string `yaml:"watchlist"`

	Scan struct {
		TopN            int `yaml:"top_n"`
		IntervalMinutes int `yaml:"interval_minutes"`
		CooldownMinutes int `yaml:"cooldown_minutes"`
	} `yaml:"scan"`

	Sentiment struct {
		Enabled       bool `yaml:"enabled"`
		IntervalHours int  `yaml:"interval_hours"`
		TopN          int  `yaml:"top_n"`
	} `yaml:"sentiment"`

	Workers struct {
		AnalysisConcurrency int `yaml:"analysis_concurrency"`
		ConsultConcurrency  int `yaml:"consult_concurrency"`
		QueueSize           int `yaml:"queue_size"`
		FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds"`
	} `yaml:"workers"`

	Retry struct {
		MaxAttempts         int     `yaml:"max_attempts"`
		FetchBaseSeconds    float64 `yaml:"fetch_base_seconds"`
		FetchMaxSeconds     float64 `yaml:"fetch_max_seconds"`
		ConsultBaseSeconds  float64 `yaml:"consult_base_seconds"`
		ConsultMaxSeconds   float64 `yaml:"consult_max_seconds"`
	} `yaml:"retry"`

	LLM struct {
		Provider    string  `yaml:"provider"` // CLAUDE, OPENAI or empty for noop
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float32 `yaml:"temperature"`
		TimeoutSecs int     `yaml:"timeout_seconds"`
		RatePerMin  int     `yaml:"rate_per_minute"`
	} `yaml:"llm"`

	Storage struct {
		Dir        string `yaml:"dir"`
		ResultsDir string `yaml:"results_dir"`
	} `yaml:"storage"`

	News struct {
		MaxHeadlines   int `yaml:"max_headlines"`
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"news"`
}

func (c *Config) Validate() error {
	if c.RatingThreshold < 0 || c.RatingThreshold > 100 {
		return fmt.Errorf("rating_threshold must be between 0-100, got %d", c.RatingThreshold)
	}
	if c.Scan.TopN <= 0 {
		return errors.New("scan.top_n must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		return errors.New("retry.max_attempts must be positive")
	}
	switch c.LLM.Provider {
	case "", "CLAUDE", "OPENAI":
	default:
		return fmt.Errorf("llm.provider must be 'CLAUDE', 'OPENAI' or empty, got '%s'", c.LLM.Provider)
	}
	if c.LLM.RatePerMin <= 0 {
		return fmt.Errorf("llm.rate_per_minute must be positive, got %d", c.LLM.RatePerMin)
	}
	return nil
}

// FetchTimeout returns the caller-side timeout wrapping one fetch attempt.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Workers.FetchTimeoutSeconds) * time.Second
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.RatingThreshold == 0 {
		c.RatingThreshold = 80
	}
	if c.Scan.TopN == 0 {
		c.Scan.TopN = 4
	}
	if c.Scan.IntervalMinutes == 0 {
		c.Scan.IntervalMinutes = 60
	}
	if c.Scan.CooldownMinutes == 0 {
		c.Scan.CooldownMinutes = 12 * 60
	}
	if c.Sentiment.IntervalHours == 0 {
		c.Sentiment.IntervalHours = 12
	}
	if c.Sentiment.TopN == 0 {
		c.Sentiment.TopN = 10
	}
	if c.Workers.AnalysisConcurrency == 0 {
		c.Workers.AnalysisConcurrency = 4
	}
	if c.Workers.ConsultConcurrency == 0 {
		c.Workers.ConsultConcurrency = 2
	}
	if c.Workers.QueueSize == 0 {
		c.Workers.QueueSize = 64
	}
	if c.Workers.FetchTimeoutSeconds == 0 {
		c.Workers.FetchTimeoutSeconds = 120
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.FetchBaseSeconds == 0 {
		c.Retry.FetchBaseSeconds = 2
	}
	if c.Retry.FetchMaxSeconds == 0 {
		c.Retry.FetchMaxSeconds = 30
	}
	if c.Retry.ConsultBaseSeconds == 0 {
		c.Retry.ConsultBaseSeconds = 10
	}
	if c.Retry.ConsultMaxSeconds == 0 {
		c.Retry.ConsultMaxSeconds = 300
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.LLM.TimeoutSecs == 0 {
		c.LLM.TimeoutSecs = 180
	}
	if c.LLM.RatePerMin == 0 {
		c.LLM.RatePerMin = 10
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "data"
	}
	if c.Storage.ResultsDir == "" {
		c.Storage.ResultsDir = "results"
	}
	if c.News.MaxHeadlines == 0 {
		c.News.MaxHeadlines = 15
	}
	if c.News.TimeoutSeconds == 0 {
		c.News.TimeoutSeconds = 30
	}
}
