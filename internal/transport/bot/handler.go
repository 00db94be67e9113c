package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/heartmarshall/firstsignal-backend/internal/adapter/provider/telegram"
	"github.com/heartmarshall/firstsignal-backend/internal/domain"
	"github.com/heartmarshall/firstsignal-backend/internal/service/dispatch"
	"github.com/heartmarshall/firstsignal-backend/internal/service/signal"
)

type decisionHandler interface {
	OnDecision(ctx context.Context, ev domain.DecisionEvent) (signal.DecisionResult, error)
}

type chatService interface {
	IsModeratorChat(chatID int64) bool
	Greet(ctx context.Context, chatID int64) error
	RegisterRecipient(ctx context.Context, chatID int64, username, callbackID string) error
	Dismiss(ctx context.Context, callbackID, text string)
}

// Handler routes Telegram updates to the signal and dispatch services.
// Updates may be delivered more than once; every route is idempotent.
type Handler struct {
	signals decisionHandler
	chat    chatService
	log     *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(signals decisionHandler, chat chatService, logger *slog.Logger) *Handler {
	return &Handler{
		signals: signals,
		chat:    chat,
		log:     logger.With("handler", "telegram"),
	}
}

// HandleUpdate processes one update. Malformed or unauthorized input is
// logged and dropped; only infrastructure failures are returned, so a caller
// that retries on error does not loop on bad input.
func (h *Handler) HandleUpdate(ctx context.Context, upd telegram.Update) error {
	switch {
	case upd.CallbackQuery != nil:
		return h.handleCallback(ctx, *upd.CallbackQuery)
	case upd.Message != nil:
		return h.handleMessage(ctx, *upd.Message)
	}
	return nil
}

func (h *Handler) handleMessage(ctx context.Context, msg telegram.Message) error {
	cmd, _, _ := strings.Cut(strings.TrimSpace(msg.Text), " ")
	if cmd != "/start" || msg.Chat.Type != telegram.ChatTypePrivate {
		return nil
	}
	if err := h.chat.Greet(ctx, msg.Chat.ID); err != nil {
		return fmt.Errorf("greet chat %d: %w", msg.Chat.ID, err)
	}
	return nil
}

func (h *Handler) handleCallback(ctx context.Context, cq telegram.CallbackQuery) error {
	if cq.Message == nil {
		h.chat.Dismiss(ctx, cq.ID, "This button has expired")
		return nil
	}
	chatID := cq.Message.Chat.ID

	if cq.Data == dispatch.CallbackRegister {
		if err := h.chat.RegisterRecipient(ctx, chatID, cq.From.Username, cq.ID); err != nil {
			return fmt.Errorf("register chat %d: %w", chatID, err)
		}
		return nil
	}

	if !h.chat.IsModeratorChat(chatID) {
		h.log.WarnContext(ctx, "decision from foreign chat",
			slog.Int64("chat_id", chatID),
			slog.Int64("user_id", cq.From.ID),
		)
		h.chat.Dismiss(ctx, cq.ID, "Not allowed")
		return nil
	}

	decision, id, err := dispatch.ParseCallbackData(cq.Data)
	if err != nil {
		h.log.WarnContext(ctx, "malformed callback data", slog.String("data", cq.Data))
		h.chat.Dismiss(ctx, cq.ID, "Unknown action")
		return nil
	}

	ev := domain.DecisionEvent{
		PromptRef:  dispatch.FormatPromptRef(chatID, cq.Message.MessageID),
		SignalID:   id,
		Decision:   decision,
		CallbackID: cq.ID,
	}
	res, err := h.signals.OnDecision(ctx, ev)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.chat.Dismiss(ctx, cq.ID, "Unknown signal")
		return nil
	case errors.Is(err, domain.ErrValidation):
		h.log.WarnContext(ctx, "rejected decision",
			slog.String("prompt_ref", ev.PromptRef),
			slog.String("error", err.Error()),
		)
		h.chat.Dismiss(ctx, cq.ID, "Invalid decision")
		return nil
	case err != nil:
		h.chat.Dismiss(ctx, cq.ID, "Try again later")
		return fmt.Errorf("decision on %s: %w", ev.PromptRef, err)
	}

	h.log.InfoContext(ctx, "decision handled",
		slog.String("signal_id", res.SignalID.String()),
		slog.String("decision", decision.String()),
		slog.String("state", res.State.String()),
		slog.Bool("duplicate", res.Duplicate),
	)
	return nil
}
