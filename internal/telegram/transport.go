package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stock-scout/internal/logger"
	"stock-scout/internal/types"
)

// Transport long-polls getUpdates and yields parsed commands. Offsets are
// kept in memory only; messages confirmed via offset are never replayed.
type Transport struct {
	client      *Client
	pollTimeout time.Duration
	idlePause   time.Duration
}

func NewTransport(client *Client) *Transport {
	return &Transport{
		client:      client,
		pollTimeout: 100 * time.Second,
		idlePause:   5 * time.Second,
	}
}

// Commands starts the polling loop and returns the command channel. The
// channel closes when ctx is cancelled.
func (t *Transport) Commands(ctx context.Context) <-chan types.Command {
	out := make(chan types.Command)
	go t.poll(ctx, out)
	return out
}

func (t *Transport) poll(ctx context.Context, out chan<- types.Command) {
	defer close(out)

	var offset int64
	logger.Info(ctx, "Telegram listener started")

	for {
		if ctx.Err() != nil {
			return
		}
		updates, err := t.client.getUpdates(ctx, offset, t.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.ErrorWithErr(ctx, "Telegram poll failed", err)
			select {
			case <-time.After(t.idlePause):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1
			cmd, ok := parseCommand(u.Message.Text, fmt.Sprintf("%d", u.Message.Chat.ID))
			if !ok {
				continue
			}
			select {
			case out <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}
}

// parseCommand recognizes "/analyze SYM[,SYM...]" and "/portfolio". Symbol
// validation happens downstream; the transport only splits tokens.
func parseCommand(text, chatID string) (types.Command, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return types.Command{}, false
	}

	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	// Commands addressed to a specific bot arrive as /analyze@botname.
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}

	switch name {
	case "analyze":
		var symbols []string
		for _, arg := range fields[1:] {
			for _, s := range strings.Split(arg, ",") {
				if s = strings.TrimSpace(s); s != "" {
					symbols = append(symbols, s)
				}
			}
		}
		return types.Command{Name: "analyze", Symbols: symbols, Requester: chatID}, true
	case "portfolio":
		return types.Command{Name: "portfolio", Requester: chatID}, true
	default:
		return types.Command{Name: name, Requester: chatID}, true
	}
}
