package pipeline

import (
	"context"

	"stock-scout/internal/bus"
	"stock-scout/internal/interfaces"
	"stock-scout/internal/logger"
	"stock-scout/internal/notify"
	"stock-scout/internal/types"
)

// Listener adapts external command sources into AnalysisRequested events.
// It parses and emits; all business logic lives downstream.
type Listener struct {
	bus             *bus.Bus
	transport       interfaces.CommandTransport
	notifier        interfaces.Notifier
	store           interfaces.RecommendationStore
	owner           string
	ratingThreshold int
}

func NewListener(b *bus.Bus, transport interfaces.CommandTransport, notifier interfaces.Notifier,
	store interfaces.RecommendationStore, owner string, ratingThreshold int) *Listener {
	return &Listener{
		bus:             b,
		transport:       transport,
		notifier:        notifier,
		store:           store,
		owner:           owner,
		ratingThreshold: ratingThreshold,
	}
}

// EnqueueStartup publishes analysis requests for the one-shot symbol batch
// supplied on the command line. Command-line requests have no chat of their
// own, so the owner chat is recorded as the requester and receives the
// result or failure directly.
func (l *Listener) EnqueueStartup(ctx context.Context, symbols []string) {
	for _, raw := range symbols {
		symbol, ok := types.NormalizeSymbol(raw)
		if !ok {
			logger.Warn(ctx, "Skipping invalid startup symbol", "symbol", raw)
			continue
		}
		logger.Info(ctx, "Requesting startup analysis", "symbol", symbol)
		l.bus.Publish(ctx, types.Event{
			Kind:      types.AnalysisRequested,
			Symbol:    symbol,
			Source:    types.SourceCliArgument,
			Requester: l.owner,
		})
	}
}

// Run consumes chat commands until the transport closes or ctx is cancelled.
func (l *Listener) Run(ctx context.Context) {
	commands := l.transport.Commands(ctx)
	logger.Info(ctx, "Inbound listener started")
	for {
		select {
		case cmd, ok := <-commands:
			if !ok {
				logger.Info(ctx, "Inbound listener stopped")
				return
			}
			l.handle(ctx, cmd)
		case <-ctx.Done():
			logger.Info(ctx, "Inbound listener stopped")
			return
		}
	}
}

func (l *Listener) handle(ctx context.Context, cmd types.Command) {
	switch cmd.Name {
	case "analyze":
		l.handleAnalyze(ctx, cmd)
	case "portfolio":
		l.handlePortfolio(ctx, cmd)
	default:
		l.reply(ctx, cmd.Requester,
			"Command not recognized. Available commands: /analyze SYMBOL[,SYMBOL...] or /portfolio")
	}
}

func (l *Listener) handleAnalyze(ctx context.Context, cmd types.Command) {
	requested := 0
	for _, raw := range cmd.Symbols {
		symbol, ok := types.NormalizeSymbol(raw)
		if !ok {
			l.reply(ctx, cmd.Requester, "Invalid symbol: "+raw)
			continue
		}
		logger.Info(ctx, "Chat analysis request", "symbol", symbol, "requester", cmd.Requester)
		l.bus.Publish(ctx, types.Event{
			Kind:      types.AnalysisRequested,
			Symbol:    symbol,
			Source:    types.SourceChatCommand,
			Requester: cmd.Requester,
		})
		requested++
	}
	if requested == 0 && len(cmd.Symbols) == 0 {
		l.reply(ctx, cmd.Requester, "Usage: /analyze SYMBOL[,SYMBOL...]")
	}
}

func (l *Listener) handlePortfolio(ctx context.Context, cmd types.Command) {
	recs, err := l.store.QueryByThreshold(ctx, l.ratingThreshold)
	if err != nil {
		logger.ErrorWithErr(ctx, "Portfolio query failed", err, "requester", cmd.Requester)
		l.reply(ctx, cmd.Requester, "Could not load portfolio, try again later.")
		return
	}
	l.reply(ctx, cmd.Requester, notify.FormatPortfolio(recs, l.ratingThreshold))
}

func (l *Listener) reply(ctx context.Context, requester, message string) {
	if err := l.notifier.Notify(ctx, interfaces.Audience{Requester: requester}, message); err != nil {
		logger.ErrorWithErr(ctx, "Reply failed", err, "requester", requester)
	}
}
