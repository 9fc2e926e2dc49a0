package retrieval

import (
	"strings"
	"unicode"
)

// Channel-repost markers. The whole set counts as one signal no matter how
// many of them appear.
var newsDumpMarkers = []string{
	"— СМИ",
	"Подписаться",
	"⚡",
	"❗",
	"🔴",
	"BREAKING",
	"Срочно:",
	"Источник:",
}

// IsNewsDump flags forwarded channel dumps: long, link-heavy, marker-laden
// text that drowns out real conversation in retrieval. Two or more signals
// make a dump.
func IsNewsDump(text string) bool {
	signals := 0
	if len(text) > 800 {
		signals++
	}
	if strings.Count(text, "http://")+strings.Count(text, "https://") >= 2 {
		signals++
	}
	for _, m := range newsDumpMarkers {
		if strings.Contains(text, m) {
			signals++
			break
		}
	}
	if startsWithEmoji(text) {
		signals++
	}
	return signals >= 2
}

// startsWithEmoji matches only codepoints outside the basic multilingual
// plane. BMP dingbats like the exclamation marker are common in ordinary
// reminders and already covered by the marker set.
func startsWithEmoji(text string) bool {
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		return r >= 0x10000
	}
	return false
}
