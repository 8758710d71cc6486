package notification

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// telegramSender delivers notifications via the Telegram Bot API. A nil
// client means Telegram delivery is disabled and Send is a no-op.
type telegramSender struct {
	client *bot.Bot
}

// newTelegramSender builds a telegramSender. token == "" disables delivery.
func newTelegramSender(token string) (*telegramSender, error) {
	if token == "" {
		return &telegramSender{}, nil
	}
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("notification: creating telegram client: %w", err)
	}
	return &telegramSender{client: b}, nil
}

// Send posts body to chatID, with attach appended as a document if present.
func (s *telegramSender) Send(ctx context.Context, chatID, body string, attach *attachment) error {
	if s.client == nil {
		return nil
	}

	if attach == nil {
		if _, err := s.client.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: body}); err != nil {
			return fmt.Errorf("%w: telegram SendMessage: %s", ErrSendFailed, err)
		}
		return nil
	}

	_, err := s.client.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID: chatID,
		Document: &models.InputFileUpload{
			Filename: attach.filename,
			Data:     bytes.NewReader(attach.data),
		},
		Caption: body,
	})
	if err != nil {
		return fmt.Errorf("%w: telegram SendDocument: %s", ErrSendFailed, err)
	}
	return nil
}
