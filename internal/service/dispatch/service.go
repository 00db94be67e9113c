// Package dispatch is the chat side of moderation: it sends approval prompts
// to the moderator chat, maps decisions back to signals, settles prompts and
// delivers committed signals to their recipients.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/heartmarshall/firstsignal-backend/internal/adapter/provider/telegram"
	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

type botClient interface {
	SendMessage(ctx context.Context, params telegram.SendMessageParams) (telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

type recipientRegistry interface {
	Register(ctx context.Context, chatID int64, username *string) error
	FindByHandle(ctx context.Context, handle string) (domain.RegisteredChat, error)
}

type signalLookup interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Signal, error)
	GetByPromptRef(ctx context.Context, ref string) (domain.Signal, error)
}

// Config holds dispatcher settings.
type Config struct {
	ModeratorChatID int64
	// ExplorerTxURL is prefixed to a ledger reference to build a link.
	ExplorerTxURL string
}

// Service talks to the chat transport on behalf of the coordinator.
type Service struct {
	bot        botClient
	recipients recipientRegistry
	signals    signalLookup
	cfg        Config
	log        *slog.Logger
}

// NewService creates a new Dispatch service.
func NewService(
	log *slog.Logger,
	bot botClient,
	recipients recipientRegistry,
	signals signalLookup,
	cfg Config,
) *Service {
	return &Service{
		bot:        bot,
		recipients: recipients,
		signals:    signals,
		cfg:        cfg,
		log:        log.With("service", "dispatch"),
	}
}

// IsModeratorChat reports whether chatID is the configured moderator chat.
func (s *Service) IsModeratorChat(chatID int64) bool {
	return chatID == s.cfg.ModeratorChatID
}
