package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramSender is satisfied by *tgbotapi.BotAPI.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramPresenter pushes fired reminders to a Telegram chat. It is one-way:
// no update polling, no command handling.
type TelegramPresenter struct {
	sender telegramSender
	chatID int64
	pres   Presentation
	logger *slog.Logger
}

func NewTelegramPresenter(token string, chatID int64, pres Presentation, logger *slog.Logger) (*TelegramPresenter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	logger.Info("telegram presenter connected", "bot", bot.Self.UserName, "chat_id", chatID)
	return &TelegramPresenter{sender: bot, chatID: chatID, pres: pres, logger: logger}, nil
}

func (p *TelegramPresenter) Present(_ context.Context, d Delivery) error {
	if !p.pres.ShowAlert {
		p.logger.Debug("telegram message suppressed by presentation policy", "reminder_id", d.ID)
		return nil
	}
	msg := p.buildMessage(d)
	if _, err := p.sender.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// buildMessage maps the presentation policy onto Telegram semantics: a muted
// policy becomes a silent message, which Telegram delivers without sound.
func (p *TelegramPresenter) buildMessage(d Delivery) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(p.chatID, fmt.Sprintf("⏰ %s", d.Title))
	msg.DisableNotification = !p.pres.PlaySound
	return msg
}
