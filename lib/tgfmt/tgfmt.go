// Package tgfmt holds small formatting helpers shared by anything that sends
// MarkdownV2 text to Telegram: the admin and start plugins and the
// lib/logger AdminHandler.
package tgfmt

import "strings"

const reservedChars = "\\_{}#+-.!|()[]=*>~`"

// Sanitize escapes MarkdownV2 reserved characters so arbitrary text (user
// names, error strings) can be embedded safely in a formatted message.
func Sanitize(input string) string {
	var sb strings.Builder
	sb.Grow(len(input))
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(char)
	}
	return sb.String()
}
