package dispatch

import (
	"context"
	"sync"

	"github.com/heartmarshall/firstsignal-backend/internal/adapter/provider/telegram"
)

// botClientMock is a mock implementation of botClient.
type botClientMock struct {
	SendMessageFunc         func(ctx context.Context, params telegram.SendMessageParams) (telegram.Message, error)
	EditMessageTextFunc     func(ctx context.Context, chatID, messageID int64, text string) error
	AnswerCallbackQueryFunc func(ctx context.Context, callbackID, text string) error

	mu    sync.Mutex
	calls struct {
		SendMessage []telegram.SendMessageParams
		EditMessage []struct {
			ChatID    int64
			MessageID int64
			Text      string
		}
		AnswerCallback []struct {
			CallbackID string
			Text       string
		}
	}
}

func (m *botClientMock) SendMessage(ctx context.Context, params telegram.SendMessageParams) (telegram.Message, error) {
	if m.SendMessageFunc == nil {
		panic("botClientMock.SendMessageFunc: method is nil but botClient.SendMessage was just called")
	}
	m.mu.Lock()
	m.calls.SendMessage = append(m.calls.SendMessage, params)
	m.mu.Unlock()
	return m.SendMessageFunc(ctx, params)
}

func (m *botClientMock) SendMessageCalls() []telegram.SendMessageParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls.SendMessage
}

func (m *botClientMock) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	if m.EditMessageTextFunc == nil {
		panic("botClientMock.EditMessageTextFunc: method is nil but botClient.EditMessageText was just called")
	}
	m.mu.Lock()
	m.calls.EditMessage = append(m.calls.EditMessage, struct {
		ChatID    int64
		MessageID int64
		Text      string
	}{chatID, messageID, text})
	m.mu.Unlock()
	return m.EditMessageTextFunc(ctx, chatID, messageID, text)
}

func (m *botClientMock) EditMessageTextCalls() []struct {
	ChatID    int64
	MessageID int64
	Text      string
} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls.EditMessage
}

func (m *botClientMock) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	if m.AnswerCallbackQueryFunc == nil {
		panic("botClientMock.AnswerCallbackQueryFunc: method is nil but botClient.AnswerCallbackQuery was just called")
	}
	m.mu.Lock()
	m.calls.AnswerCallback = append(m.calls.AnswerCallback, struct {
		CallbackID string
		Text       string
	}{callbackID, text})
	m.mu.Unlock()
	return m.AnswerCallbackQueryFunc(ctx, callbackID, text)
}

func (m *botClientMock) AnswerCallbackQueryCalls() []struct {
	CallbackID string
	Text       string
} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls.AnswerCallback
}

// okBot returns a mock that accepts every call; sent messages get id 100.
func okBot() *botClientMock {
	return &botClientMock{
		SendMessageFunc: func(ctx context.Context, p telegram.SendMessageParams) (telegram.Message, error) {
			return telegram.Message{MessageID: 100, Chat: telegram.Chat{ID: p.ChatID}}, nil
		},
		EditMessageTextFunc:     func(ctx context.Context, chatID, messageID int64, text string) error { return nil },
		AnswerCallbackQueryFunc: func(ctx context.Context, callbackID, text string) error { return nil },
	}
}
