package telegram

import "strings"

// markdownV2Special is Telegram's MarkdownV2 reserved-character set;
// every occurrence outside of formatting markup must be
// backslash-escaped.
const markdownV2Special = "_*[]()~`>#+-=|{}.!"

// EscapeMarkdownV2 backslash-escapes every MarkdownV2 special character in
// text.
func EscapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(markdownV2Special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
