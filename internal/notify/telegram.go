package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// Sender delivers one formatted message. Fakes implement it in tests.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// TelegramSender delivers messages through the Bot API.
type TelegramSender struct {
	bot *tele.Bot
}

func NewTelegramSender(token string) (*TelegramSender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Client: nil,
		// The notifier only sends; no poller is attached.
		Poller: nil,
	})
	if err != nil {
		return nil, err
	}
	return &TelegramSender{bot: b}, nil
}

func (t *TelegramSender) Send(ctx context.Context, chatID int64, text string) error {
	type result struct{ err error }
	ch := make(chan result, 1)
	go func() {
		_, err := t.bot.Send(tele.ChatID(chatID), text, &tele.SendOptions{
			DisableWebPagePreview: true,
		})
		ch <- result{err}
	}()
	select {
	case r := <-ch:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(15 * time.Second):
		return errors.New("telegram send timed out")
	}
}
