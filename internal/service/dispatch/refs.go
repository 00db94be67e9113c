package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// CallbackRegister is the callback data of the recipient registration button.
const CallbackRegister = "register"

// FormatPromptRef builds the opaque prompt reference "chatID:messageID".
func FormatPromptRef(chatID, messageID int64) string {
	return strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(messageID, 10)
}

// ParsePromptRef splits a prompt reference into chat and message ids.
func ParsePromptRef(ref string) (chatID, messageID int64, err error) {
	chatPart, msgPart, ok := strings.Cut(ref, ":")
	if !ok {
		return 0, 0, fmt.Errorf("prompt ref %q: missing separator", ref)
	}
	if chatID, err = strconv.ParseInt(chatPart, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("prompt ref %q: chat id: %w", ref, err)
	}
	if messageID, err = strconv.ParseInt(msgPart, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("prompt ref %q: message id: %w", ref, err)
	}
	return chatID, messageID, nil
}

// CallbackData encodes a decision button, e.g. "approve:<signal id>".
func CallbackData(d domain.Decision, id uuid.UUID) string {
	return d.String() + ":" + id.String()
}

// ParseCallbackData decodes a decision button.
func ParseCallbackData(data string) (domain.Decision, uuid.UUID, error) {
	verb, rawID, ok := strings.Cut(data, ":")
	if !ok {
		return "", uuid.Nil, fmt.Errorf("callback %q: %w", data, domain.ErrValidation)
	}
	d := domain.Decision(verb)
	if !d.IsValid() {
		return "", uuid.Nil, fmt.Errorf("callback %q: unknown decision: %w", data, domain.ErrValidation)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("callback %q: signal id: %w", data, domain.ErrValidation)
	}
	return d, id, nil
}
