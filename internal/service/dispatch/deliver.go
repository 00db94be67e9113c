package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/heartmarshall/firstsignal-backend/internal/adapter/provider/telegram"
	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// Deliver sends a COMMITTED signal to the chat its recipient registered.
// It returns domain.ErrNotFound when the recipient never registered.
func (s *Service) Deliver(ctx context.Context, sig domain.Signal) error {
	if sig.State != domain.SignalStateCommitted {
		return &domain.ConflictError{SignalID: sig.ID, Expected: domain.SignalStateCommitted, Actual: sig.State}
	}

	chat, err := s.recipients.FindByHandle(ctx, sig.RecipientHandle)
	if err != nil {
		return fmt.Errorf("find recipient @%s: %w", sig.RecipientHandle, err)
	}

	var b strings.Builder
	b.WriteString("You have received a signal:\n\n")
	b.WriteString(sig.Message)
	b.WriteString("\n")
	if sig.SenderContact != nil {
		fmt.Fprintf(&b, "\nFrom: %s", *sig.SenderContact)
	}
	if link := s.ledgerLink(sig); link != "" {
		fmt.Fprintf(&b, "\nLedger: %s", link)
	}

	if _, err := s.bot.SendMessage(ctx, telegram.SendMessageParams{ChatID: chat.ChatID, Text: b.String()}); err != nil {
		return fmt.Errorf("deliver to @%s: %w", sig.RecipientHandle, err)
	}

	s.log.InfoContext(ctx, "signal delivered",
		slog.String("signal_id", sig.ID.String()),
		slog.Int64("chat_id", chat.ChatID),
	)
	return nil
}
