package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"stock-scout/internal/bus"
	"stock-scout/internal/consult"
	"stock-scout/internal/consult/consultobs"
	"stock-scout/internal/fetch"
	"stock-scout/internal/fetch/fetchobs"
	"stock-scout/internal/interfaces"
	"stock-scout/internal/logger"
	"stock-scout/internal/notify"
	"stock-scout/internal/pipeline"
	"stock-scout/internal/registry"
	"stock-scout/internal/sentiment"
	"stock-scout/internal/storage"
	"stock-scout/internal/store"
	"stock-scout/internal/telegram"
	"stock-scout/internal/trace"
)

// initializeSystem loads env vars and brings up logging and tracing.
func initializeSystem(logPath string) error {
	_ = godotenv.Load()

	logCfg := logger.ConfigFromEnv()
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logCfg.Output = f
	}
	if err := logger.InitWithConfig(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

// initializeFetcher builds the data/summarization collaborator with
// observability.
func initializeFetcher(cfg *store.Config) interfaces.Fetcher {
	f := fetch.New(fetch.Config{
		MaxHeadlines: cfg.News.MaxHeadlines,
		NewsTimeout:  time.Duration(cfg.News.TimeoutSeconds) * time.Second,
	})
	return fetchobs.Wrap(f)
}

// initializeConsultant builds the AI-consultation collaborator with
// observability.
func initializeConsultant(ctx context.Context, cfg *store.Config) (interfaces.Consultant, error) {
	var consultant interfaces.Consultant
	switch cfg.LLM.Provider {
	case "CLAUDE":
		c, err := consult.NewClaudeConsultant(cfg)
		if err != nil {
			return nil, err
		}
		consultant = c
	case "OPENAI":
		consultant = consult.NewOpenAIConsultant(cfg)
	default:
		consultant = consult.NewNoopConsultant()
		logger.Warn(ctx, "No LLM provider configured - using noop consultant (neutral ratings)")
	}
	return consultobs.Wrap(consultant), nil
}

// purgeOldRecommendations drops stored recommendations older than the
// configured retention, if any.
func purgeOldRecommendations(ctx context.Context, s *storage.Store) {
	v := os.Getenv("SCOUT_RETENTION_DAYS")
	if v == "" {
		return
	}
	var days int
	fmt.Sscanf(v, "%d", &days)
	if days <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	if err := s.PurgeOlderThan(cutoff); err != nil {
		logger.Warn(ctx, "Failed to purge old recommendations", "error", err)
	}
}

// registryPolicies maps config retry settings onto per-stage policies. The
// consultation stage gets the longer ceiling.
func registryPolicies(cfg *store.Config) map[registry.Stage]registry.RetryPolicy {
	return map[registry.Stage]registry.RetryPolicy{
		registry.StageFetch: {
			Base:        time.Duration(cfg.Retry.FetchBaseSeconds * float64(time.Second)),
			Max:         time.Duration(cfg.Retry.FetchMaxSeconds * float64(time.Second)),
			MaxAttempts: cfg.Retry.MaxAttempts,
		},
		registry.StageConsult: {
			Base:        time.Duration(cfg.Retry.ConsultBaseSeconds * float64(time.Second)),
			Max:         time.Duration(cfg.Retry.ConsultMaxSeconds * float64(time.Second)),
			MaxAttempts: cfg.Retry.MaxAttempts,
		},
	}
}

// system holds the wired application.
type system struct {
	bus        *bus.Bus
	registry   *registry.Registry
	analysis   *pipeline.AnalysisWorker
	consult    *pipeline.ConsultWorker
	dispatcher *pipeline.Dispatcher
	listener   *pipeline.Listener
	store      *storage.Store
}

func buildSystem(ctx context.Context, cfg *store.Config) (*system, error) {
	fetcher := initializeFetcher(cfg)
	consultant, err := initializeConsultant(ctx, cfg)
	if err != nil {
		return nil, err
	}

	recStore, err := storage.Open(cfg.Storage.Dir)
	if err != nil {
		return nil, err
	}
	purgeOldRecommendations(ctx, recStore)
	journal, err := storage.NewJournal(cfg.Storage.ResultsDir)
	if err != nil {
		recStore.Close()
		return nil, err
	}

	botToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	broadcastChat := os.Getenv("TELEGRAM_CHAT_ID")
	if botToken == "" {
		recStore.Close()
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN missing")
	}
	tgClient := telegram.NewClient(botToken)
	notifier := notify.NewTelegramNotifier(tgClient, broadcastChat)
	transport := telegram.NewTransport(tgClient)

	var trending interfaces.TrendingSource
	if cfg.Sentiment.Enabled {
		trending = sentiment.NewStocktwitsSource(time.Duration(cfg.News.TimeoutSeconds) * time.Second)
	}

	b := bus.New(cfg.Workers.QueueSize)
	reg := registry.New(registryPolicies(cfg))
	watchlist := pipeline.NewWatchlist(cfg.Watchlist,
		time.Duration(cfg.Scan.CooldownMinutes)*time.Minute)

	return &system{
		bus:      b,
		registry: reg,
		analysis: pipeline.NewAnalysisWorker(b, reg, fetcher,
			cfg.Workers.AnalysisConcurrency, cfg.FetchTimeout()),
		consult: pipeline.NewConsultWorker(b, reg, consultant,
			cfg.Workers.ConsultConcurrency),
		dispatcher: pipeline.NewDispatcher(b, reg, recStore, notifier, journal,
			trending, watchlist, pipeline.DispatcherConfig{
				RatingThreshold:   cfg.RatingThreshold,
				ScanTopN:          cfg.Scan.TopN,
				ScanInterval:      time.Duration(cfg.Scan.IntervalMinutes) * time.Minute,
				SentimentInterval: time.Duration(cfg.Sentiment.IntervalHours) * time.Hour,
				SentimentTopN:     cfg.Sentiment.TopN,
			}),
		listener: pipeline.NewListener(b, transport, notifier, recStore, broadcastChat, cfg.RatingThreshold),
		store:    recStore,
	}, nil
}
