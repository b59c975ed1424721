package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/mkuznetsov/aifund-bot/internal/adapters/config"
	"github.com/mkuznetsov/aifund-bot/pkg/logger"
)

// Notifier fans out human-readable engine events. All sends are best-effort:
// a notification failure is logged and never propagates to the engine.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewNotifier creates new Telegram notifier. Returns a disabled notifier
// (all sends are no-ops) when no bot token is configured.
func NewNotifier(cfg *config.TelegramConfig) (*Notifier, error) {
	if !cfg.Enabled || cfg.BotToken == "" {
		logger.Info("telegram notifications disabled")
		return &Notifier{}, nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot.Debug = false

	logger.Info("telegram notifier initialized",
		zap.String("bot_username", bot.Self.UserName),
	)

	return &Notifier{api: bot, chatID: cfg.ChatID}, nil
}

// Notify sends one message to the configured chat. Never returns an error.
func (n *Notifier) Notify(ctx context.Context, text string) {
	if n.api == nil {
		return
	}

	select {
	case <-ctx.Done():
		logger.Warn("notification skipped, context done",
			zap.Error(ctx.Err()),
		)
		return
	default:
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"

	if _, err := n.api.Send(msg); err != nil {
		logger.Warn("failed to send telegram notification",
			zap.Int64("chat_id", n.chatID),
			zap.Error(err),
		)
	}
}

// Notifyf sends a formatted message
func (n *Notifier) Notifyf(ctx context.Context, format string, args ...interface{}) {
	n.Notify(ctx, fmt.Sprintf(format, args...))
}
