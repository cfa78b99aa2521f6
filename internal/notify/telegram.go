// Package notify delivers analysis outcomes to humans over Telegram and
// formats the messages they read.
package notify

import (
	"context"
	"errors"

	"stock-scout/internal/interfaces"
	"stock-scout/internal/telegram"
)

// TelegramNotifier sends direct messages to requester chat ids and
// broadcast messages to the configured channel.
type TelegramNotifier struct {
	client          *telegram.Client
	broadcastChatID string
}

var _ interfaces.Notifier = (*TelegramNotifier)(nil)

func NewTelegramNotifier(client *telegram.Client, broadcastChatID string) *TelegramNotifier {
	return &TelegramNotifier{client: client, broadcastChatID: broadcastChatID}
}

func (n *TelegramNotifier) Notify(ctx context.Context, aud interfaces.Audience, message string) error {
	chatID := aud.Requester
	if aud.Broadcast || chatID == "" {
		chatID = n.broadcastChatID
	}
	if chatID == "" {
		return errors.New("no chat id to notify")
	}
	return n.client.SendMessage(ctx, chatID, message)
}
