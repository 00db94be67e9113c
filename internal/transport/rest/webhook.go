package rest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-telegram/bot/models"

	"github.com/heartmarshall/firstsignal-backend/internal/adapter/provider/telegram"
)

// WebhookSecretHeader is set by Telegram on every webhook delivery.
const WebhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxWebhookBodyBytes = 1 << 20

type updateHandler interface {
	HandleUpdate(ctx context.Context, upd telegram.Update) error
}

// WebhookHandler receives pushed Telegram updates.
type WebhookHandler struct {
	secret  string
	updates updateHandler
	log     *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler. secret must match the
// secret_token registered with setWebhook.
func NewWebhookHandler(secret string, updates updateHandler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		secret:  secret,
		updates: updates,
		log:     logger.With("handler", "webhook"),
	}
}

// Receive handles POST /telegram/webhook. A non-2xx answer makes Telegram
// redeliver, so only infrastructure failures return 500.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get(WebhookSecretHeader)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var raw models.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)).Decode(&raw); err != nil {
		h.log.WarnContext(r.Context(), "malformed update", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusOK)
		return
	}

	upd := telegram.ConvertUpdate(&raw)

	// Decisions must finish even if Telegram drops the connection.
	if err := h.updates.HandleUpdate(context.WithoutCancel(r.Context()), upd); err != nil {
		h.log.ErrorContext(r.Context(), "handle update failed",
			slog.Int64("update_id", upd.UpdateID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusOK)
}
