package telegram

import "github.com/go-telegram/bot/models"

// ChatTypePrivate is the type of a one-to-one chat with the bot.
const ChatTypePrivate = string(models.ChatTypePrivate)

// Update is one inbound event from long polling or the webhook.
type Update struct {
	UpdateID      int64
	Message       *Message
	CallbackQuery *CallbackQuery
}

// Message is a chat message.
type Message struct {
	MessageID int64
	From      *User
	Chat      Chat
	Text      string
}

// User is a Telegram account.
type User struct {
	ID       int64
	Username string
}

// Chat is a private chat, group or channel.
type Chat struct {
	ID   int64
	Type string
}

// CallbackQuery is a press on an inline keyboard button. Message is nil when
// the pressed message is no longer available.
type CallbackQuery struct {
	ID      string
	From    User
	Message *Message
	Data    string
}

// InlineKeyboardMarkup is an inline keyboard attached to a message.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton
}

// InlineKeyboardButton is one button of an inline keyboard.
type InlineKeyboardButton struct {
	Text         string
	CallbackData string
}

// SendMessageParams are the arguments of sendMessage.
type SendMessageParams struct {
	ChatID         int64
	Text           string
	ReplyMarkup    *InlineKeyboardMarkup
	ProtectContent bool
}

// ConvertUpdate maps a Bot API update onto the fields the coordinator reads.
// Update kinds other than messages and button presses come back empty.
func ConvertUpdate(upd *models.Update) Update {
	if upd == nil {
		return Update{}
	}
	out := Update{UpdateID: upd.ID}
	if upd.Message != nil {
		msg := convertMessage(upd.Message)
		out.Message = &msg
	}
	if cq := upd.CallbackQuery; cq != nil {
		out.CallbackQuery = &CallbackQuery{
			ID:      cq.ID,
			From:    convertUser(cq.From),
			Message: pressedMessage(cq.Message),
			Data:    cq.Data,
		}
	}
	return out
}

// pressedMessage keeps the chat and message id even for messages Telegram
// reports as inaccessible, which is all a decision needs.
func pressedMessage(m models.MaybeInaccessibleMessage) *Message {
	switch {
	case m.Message != nil:
		msg := convertMessage(m.Message)
		return &msg
	case m.InaccessibleMessage != nil:
		return &Message{
			MessageID: int64(m.InaccessibleMessage.MessageID),
			Chat:      convertChat(m.InaccessibleMessage.Chat),
		}
	}
	return nil
}

func convertMessage(m *models.Message) Message {
	msg := Message{
		MessageID: int64(m.ID),
		Chat:      convertChat(m.Chat),
		Text:      m.Text,
	}
	if m.From != nil {
		u := convertUser(*m.From)
		msg.From = &u
	}
	return msg
}

func convertChat(c models.Chat) Chat {
	return Chat{ID: c.ID, Type: string(c.Type)}
}

func convertUser(u models.User) User {
	return User{ID: u.ID, Username: u.Username}
}

func inlineKeyboard(kb *InlineKeyboardMarkup) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(kb.InlineKeyboard))
	for _, row := range kb.InlineKeyboard {
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, models.InlineKeyboardButton{Text: b.Text, CallbackData: b.CallbackData})
		}
		rows = append(rows, buttons)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}
