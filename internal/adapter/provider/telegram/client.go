// Package telegram adapts the Bot API library to the calls the moderation
// prompt, recipient delivery and update intake need.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Client wraps a Bot API session. Outbound calls are safe for concurrent
// use; long polling runs only while Start is active.
type Client struct {
	api     *tgbot.Bot
	updates chan Update
	log     *slog.Logger
}

// NewClient creates a Client. The HTTP timeout must cover long polling, so
// it is pollTimeout plus requestTimeout.
func NewClient(baseURL, token string, requestTimeout, pollTimeout time.Duration, logger *slog.Logger) (*Client, error) {
	c := &Client{
		updates: make(chan Update),
		log:     logger.With("adapter", "telegram"),
	}

	api, err := tgbot.New(token,
		tgbot.WithServerURL(baseURL),
		tgbot.WithSkipGetMe(),
		tgbot.WithHTTPClient(pollTimeout, &http.Client{Timeout: pollTimeout + requestTimeout}),
		tgbot.WithNotAsyncHandlers(),
		tgbot.WithDefaultHandler(c.enqueue),
		tgbot.WithErrorsHandler(func(err error) {
			c.log.Warn("get updates failed", slog.String("error", err.Error()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	c.api = api
	return c, nil
}

// Start long-polls until ctx is cancelled, publishing updates on Updates.
// Telegram considers an update delivered once the next poll is issued.
func (c *Client) Start(ctx context.Context) {
	c.log.InfoContext(ctx, "long polling started")
	c.api.Start(ctx)
	c.log.InfoContext(ctx, "long polling stopped")
}

// Updates returns the channel fed by Start. It is never closed.
func (c *Client) Updates() <-chan Update {
	return c.updates
}

func (c *Client) enqueue(ctx context.Context, _ *tgbot.Bot, upd *models.Update) {
	select {
	case c.updates <- ConvertUpdate(upd):
	case <-ctx.Done():
		c.log.Warn("update dropped at shutdown", slog.Int64("update_id", upd.ID))
	}
}

// SendMessage posts a message and returns it as stored by Telegram.
func (c *Client) SendMessage(ctx context.Context, p SendMessageParams) (Message, error) {
	params := &tgbot.SendMessageParams{
		ChatID:         p.ChatID,
		Text:           p.Text,
		ProtectContent: p.ProtectContent,
	}
	if p.ReplyMarkup != nil {
		params.ReplyMarkup = inlineKeyboard(p.ReplyMarkup)
	}

	msg, err := c.api.SendMessage(ctx, params)
	if err != nil {
		c.log.ErrorContext(ctx, "telegram request failed", slog.String("method", "sendMessage"), slog.String("error", err.Error()))
		return Message{}, fmt.Errorf("telegram: sendMessage: %w", err)
	}
	return convertMessage(msg), nil
}

// EditMessageText replaces the text of a message and drops its keyboard.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	_, err := c.api.EditMessageText(ctx, &tgbot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: int(messageID),
		Text:      text,
	})
	if err != nil {
		return fmt.Errorf("telegram: editMessageText: %w", err)
	}
	return nil
}

// AnswerCallbackQuery acknowledges a button press; text is shown as a toast.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	if _, err := c.api.AnswerCallbackQuery(ctx, &tgbot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	}); err != nil {
		return fmt.Errorf("telegram: answerCallbackQuery: %w", err)
	}
	return nil
}
