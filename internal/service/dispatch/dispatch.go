package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/heartmarshall/firstsignal-backend/internal/adapter/provider/telegram"
	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// Dispatch sends the moderation prompt for a PENDING signal and returns its
// prompt reference. The prompt shows message and contact, is tagged with the
// signal id and is protected from forwarding.
func (s *Service) Dispatch(ctx context.Context, sig domain.Signal) (string, error) {
	if sig.State != domain.SignalStatePending {
		return "", &domain.ConflictError{SignalID: sig.ID, Expected: domain.SignalStatePending, Actual: sig.State}
	}

	msg, err := s.bot.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:         s.cfg.ModeratorChatID,
		Text:           renderPrompt(sig),
		ProtectContent: true,
		ReplyMarkup: &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: "Approve", CallbackData: CallbackData(domain.DecisionApprove, sig.ID)},
			{Text: "Reject", CallbackData: CallbackData(domain.DecisionReject, sig.ID)},
		}}},
	})
	if err != nil {
		return "", fmt.Errorf("send prompt: %w", err)
	}

	ref := FormatPromptRef(msg.Chat.ID, msg.MessageID)
	s.log.InfoContext(ctx, "prompt dispatched",
		slog.String("signal_id", sig.ID.String()),
		slog.String("prompt_ref", ref),
		slog.Int("message_length", domain.TextLength(sig.Message)),
	)
	return ref, nil
}

func renderPrompt(sig domain.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New signal %s\n", sig.ID)
	fmt.Fprintf(&b, "To: @%s\n", sig.RecipientHandle)
	if sig.SenderContact != nil {
		fmt.Fprintf(&b, "Contact: %s\n", *sig.SenderContact)
	}
	b.WriteString("\n")
	b.WriteString(sig.Message)
	return b.String()
}
