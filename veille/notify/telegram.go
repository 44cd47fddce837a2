// CLAUDE:SUMMARY Telegram sink: pushes formatted stock-change events to a chat.
package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hazyhaar/torref/veille/internal/store"
)

// ItemLookup resolves an item so messages can show titles instead of keys.
type ItemLookup func(ctx context.Context, sourceID, key string) (*store.Item, error)

// TelegramSink pushes events to one chat, batched into a single message
// per cycle to stay under Telegram's rate limits.
type TelegramSink struct {
	api    *tgbotapi.BotAPI
	chatID int64
	lookup ItemLookup
}

// NewTelegramSink connects to the Bot API and verifies the token.
func NewTelegramSink(token string, chatID int64, lookup ItemLookup) (*TelegramSink, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	return &TelegramSink{api: api, chatID: chatID, lookup: lookup}, nil
}

func (s *TelegramSink) Notify(ctx context.Context, src *store.Source, events []*store.Event) error {
	if len(events) == 0 {
		return nil
	}
	lines := make([]string, 0, len(events))
	for _, ev := range events {
		var it *store.Item
		if s.lookup != nil {
			it, _ = s.lookup(ctx, ev.SourceID, ev.ItemKey)
		}
		lines = append(lines, FormatEvent(src, ev, it))
	}
	msg := tgbotapi.NewMessage(s.chatID, strings.Join(lines, "\n"))
	msg.DisableWebPagePreview = true
	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
