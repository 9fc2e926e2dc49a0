package retrieval

import (
	"strings"
	"testing"
)

func TestIsNewsDump(t *testing.T) {
	longBody := strings.Repeat("а", 900)
	cases := []struct {
		name string
		text string
		want bool
	}{
		{"plain chat message", "пошли завтра в кино?", false},
		{"single marker only", "Срочно: собираемся в 7", false},
		{"single link only", "глянь https://example.com/a", false},
		{"several markers still one signal", "⚡ Срочно: доллар вырос — СМИ", false},
		{"marked short reminder", "❗ напоминаю, завтра встреча в восемь", false},
		{"marker plus non-bmp emoji start", "🔴 Срочно: встреча отменяется", true},
		{"long plus two links", longBody + " https://a.example https://b.example", true},
		{"marker plus two links", "Подписаться https://a.example https://b.example", true},
		{"long plain monologue", longBody, false},
		{"emoji start plus long", "🔴 " + longBody, true},
		{"empty", "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsNewsDump(c.text); got != c.want {
				t.Fatalf("IsNewsDump: want=%v got=%v", c.want, got)
			}
		})
	}
}

func TestStartsWithEmoji(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"  🔴 текст", true},
		{"😀 привет", true},
		{"привет 🔴", false},
		{"⚡ срочно", false},
		{"❗важно", false},
		{"", false},
		{"   ", false},
	}
	for _, c := range cases {
		if got := startsWithEmoji(c.text); got != c.want {
			t.Fatalf("startsWithEmoji(%q): want=%v got=%v", c.text, c.want, got)
		}
	}
}
