package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/heartmarshall/firstsignal-backend/internal/adapter/provider/telegram"
	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// Greet answers /start with the registration button.
func (s *Service) Greet(ctx context.Context, chatID int64) error {
	_, err := s.bot.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: chatID,
		Text:   "Register to receive signals sent to your username.",
		ReplyMarkup: &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: "Register", CallbackData: CallbackRegister},
		}}},
	})
	if err != nil {
		return fmt.Errorf("send greeting: %w", err)
	}
	return nil
}

// RegisterRecipient binds chatID to username so committed signals can be
// delivered. Users without a username cannot be addressed and are told so.
func (s *Service) RegisterRecipient(ctx context.Context, chatID int64, username, callbackID string) error {
	handle := domain.NormalizeHandle(username)

	reply := "Set a Telegram username first, then press Register again."
	if handle != "" {
		if err := s.recipients.Register(ctx, chatID, &handle); err != nil {
			return fmt.Errorf("register chat %d: %w", chatID, err)
		}
		reply = "Registered as @" + handle + "."
		s.log.InfoContext(ctx, "recipient registered", slog.Int64("chat_id", chatID), slog.String("handle", handle))
	}

	if callbackID != "" {
		if err := s.bot.AnswerCallbackQuery(ctx, callbackID, reply); err != nil {
			s.log.WarnContext(ctx, "answer callback failed", slog.String("error", err.Error()))
		}
	}
	if _, err := s.bot.SendMessage(ctx, telegram.SendMessageParams{ChatID: chatID, Text: reply}); err != nil {
		return fmt.Errorf("send registration reply: %w", err)
	}
	return nil
}
