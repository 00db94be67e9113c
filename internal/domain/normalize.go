package domain

import (
	"strings"
	"unicode/utf8"
)

// Length limits for submitted fields, counted in runes after trimming.
// A moderation prompt carries message, contact and a header and must fit in
// one 4096-rune chat message.
const (
	MinTextLength      = 2
	MaxMessageLength   = 3500
	MaxHandleLength    = 64
	MaxContactLength   = 256
	MaxSenderKeyLength = 128
)

// NormalizeHandle prepares a recipient handle for storage and comparison:
//   - trims leading/trailing whitespace
//   - strips a leading '@'
//   - converts to lowercase
func NormalizeHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	handle = strings.TrimPrefix(handle, "@")
	return strings.ToLower(strings.TrimSpace(handle))
}

// NormalizeSenderKey trims and lowercases a sender key so that wallet
// addresses in mixed case map to one cooldown record.
func NormalizeSenderKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// TextLength returns the number of runes in s after trimming whitespace.
func TextLength(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
