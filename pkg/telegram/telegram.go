package telegram

import (
	"context"

	"golang-rotation/config"
	"golang-rotation/pkg/logger"

	"golang.org/x/time/rate"
	"gopkg.in/telebot.v3"
)

// Notifier pushes one-way messages (scan reports, backtest summaries) to a
// configured chat, rate limited globally.
type Notifier struct {
	cfg           *config.TelegramConfig
	log           *logger.Logger
	bot           *telebot.Bot
	globalLimiter *rate.Limiter
}

func NewNotifier(cfg *config.TelegramConfig, log *logger.Logger, bot *telebot.Bot) *Notifier {
	maxPerSecond := cfg.MaxGlobalRequestPerSecond
	if maxPerSecond <= 0 {
		maxPerSecond = 1
	}

	return &Notifier{
		cfg:           cfg,
		log:           log,
		bot:           bot,
		globalLimiter: rate.NewLimiter(rate.Limit(maxPerSecond), maxPerSecond),
	}
}

// SendMessage delivers a markdown message to the configured chat. A nil bot
// (telegram disabled) is a silent no-op so callers never need to branch.
func (t *Notifier) SendMessage(ctx context.Context, message string) error {
	if t.bot == nil {
		return nil
	}

	if err := t.globalLimiter.Wait(ctx); err != nil {
		return err
	}

	_, err := t.bot.Send(&telebot.Chat{ID: t.cfg.ChatID}, message, telebot.ModeMarkdown)
	if err != nil {
		t.log.ErrorContext(ctx, "Failed to send telegram message", logger.ErrorField(err))
		return err
	}
	return nil
}
