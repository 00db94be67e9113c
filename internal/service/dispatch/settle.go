package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// Settle acknowledges a decision: it answers the button press and replaces
// the prompt text, removing the message body and the keyboard. Failures are
// logged and not returned.
func (s *Service) Settle(ctx context.Context, ev domain.DecisionEvent, sig domain.Signal, duplicate bool) {
	toast := "Decision recorded"
	if duplicate {
		toast = "Already resolved: " + sig.State.String()
	}
	if ev.CallbackID != "" {
		if err := s.bot.AnswerCallbackQuery(ctx, ev.CallbackID, toast); err != nil {
			s.log.WarnContext(ctx, "answer callback failed",
				slog.String("signal_id", sig.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	s.editPrompt(ctx, ev.PromptRef, sig)
}

// Announce updates the prompt of a signal after its ledger outcome is known.
func (s *Service) Announce(ctx context.Context, sig domain.Signal) {
	if sig.PromptRef == nil {
		return
	}
	s.editPrompt(ctx, *sig.PromptRef, sig)
}

func (s *Service) editPrompt(ctx context.Context, ref string, sig domain.Signal) {
	if ref == "" {
		return
	}
	chatID, msgID, err := ParsePromptRef(ref)
	if err != nil {
		s.log.WarnContext(ctx, "bad prompt ref", slog.String("prompt_ref", ref), slog.String("error", err.Error()))
		return
	}
	if err := s.bot.EditMessageText(ctx, chatID, msgID, s.renderOutcome(sig)); err != nil {
		s.log.WarnContext(ctx, "edit prompt failed",
			slog.String("signal_id", sig.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) renderOutcome(sig domain.Signal) string {
	head := fmt.Sprintf("Signal %s to @%s", sig.ID, sig.RecipientHandle)
	switch sig.State {
	case domain.SignalStateApproved:
		return head + ": approved, committing to the ledger"
	case domain.SignalStateRejected:
		if sig.RejectReason != nil && *sig.RejectReason != domain.RejectReasonModerator {
			return head + ": rejected (" + string(*sig.RejectReason) + ")"
		}
		return head + ": rejected"
	case domain.SignalStateCommitted:
		return head + ": committed\n" + s.ledgerLink(sig)
	case domain.SignalStateFailed:
		return fmt.Sprintf("%s: ledger commit FAILED after %d attempt(s)", head, sig.Attempts)
	case domain.SignalStatePending:
		return head + ": pending"
	}
	return head
}

func (s *Service) ledgerLink(sig domain.Signal) string {
	if sig.LedgerRef == nil {
		return ""
	}
	return s.cfg.ExplorerTxURL + *sig.LedgerRef
}

// Dismiss answers a button press that could not be applied.
func (s *Service) Dismiss(ctx context.Context, callbackID, text string) {
	if callbackID == "" {
		return
	}
	if err := s.bot.AnswerCallbackQuery(ctx, callbackID, text); err != nil {
		s.log.WarnContext(ctx, "answer callback failed", slog.String("error", err.Error()))
	}
}
