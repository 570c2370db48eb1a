// File: internal/infra/telegram/alert_hook.go
package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

var _ zerolog.Hook = (*AlertHook)(nil)

// AlertHook forwards error-level log events to an operator chat through a
// dedicated alert bot. Sends go through a buffered channel so logging
// never blocks on Telegram; overflow is dropped silently.
type AlertHook struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	queue  chan string
}

func NewAlertHook(token string, chatID int64) (*AlertHook, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("alert bot: %w", err)
	}
	h := &AlertHook{bot: bot, chatID: chatID, queue: make(chan string, 64)}
	go h.drain()
	return h, nil
}

func (h *AlertHook) Run(e *zerolog.Event, level zerolog.Level, message string) {
	if level < zerolog.ErrorLevel || h.chatID == 0 {
		return
	}
	select {
	case h.queue <- fmt.Sprintf("🚨 %s: %s", level.String(), message):
	default:
	}
}

func (h *AlertHook) drain() {
	for text := range h.queue {
		msg := tgbotapi.NewMessage(h.chatID, text)
		_, _ = h.bot.Send(msg)
	}
}
