package utils

import (
	"fmt"
	"html"
)

// EscapeHTML makes free-form text (display names, KOL labels) safe for
// Telegram's HTML parse mode. Stored values stay raw; escaping happens only
// at render time.
func EscapeHTML(s string) string {
	return html.EscapeString(s)
}

// Mention renders an HTML mention that pings the user regardless of whether
// they have a public username.
func Mention(userID int64, displayName string) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, userID, EscapeHTML(displayName))
}
