package bot

import (
	"context"
	"errors"
	"sync/atomic"

	tgsender "github.com/roastery/baristabot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// ErrNotBound is returned when a send is attempted before the bot runtime
// has started.
var ErrNotBound = errors.New("bot: sender not bound to a running bot")

type boundSender struct {
	bot  *tele.Bot
	disp *tgsender.Dispatcher
}

// TelegramSender delivers machine replies to users through the outbound
// dispatcher. It is created before the bot starts and bound in OnStart.
type TelegramSender struct {
	bound atomic.Pointer[boundSender]
}

// NewTelegramSender returns an unbound sender.
func NewTelegramSender() *TelegramSender {
	return &TelegramSender{}
}

// Bind attaches the live bot and dispatcher.
func (s *TelegramSender) Bind(bot *tele.Bot, disp *tgsender.Dispatcher) {
	s.bound.Store(&boundSender{bot: bot, disp: disp})
}

// Send queues a plain text message to the user.
func (s *TelegramSender) Send(ctx context.Context, userID int64, text string) error {
	b := s.bound.Load()
	if b == nil || b.bot == nil {
		return ErrNotBound
	}

	run := func() error {
		_, err := b.bot.Send(&tele.User{ID: userID}, text)
		return err
	}
	if b.disp == nil {
		return run()
	}
	if err := b.disp.Enqueue(ctx, "send.text", "sendMessage", run); err != nil {
		if errors.Is(err, tgsender.ErrQueueFull) || errors.Is(err, tgsender.ErrQueueClosed) {
			return run()
		}
		return err
	}
	return nil
}
