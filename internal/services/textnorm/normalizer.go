package textnorm

import (
	"strings"
	"unicode"
)

// Russian stop words tuned for chat queries. Short function words dominate
// group-chat questions and only add noise to sparse search.
var stopWords = map[string]struct{}{
	"и": {}, "в": {}, "во": {}, "не": {}, "что": {}, "он": {}, "на": {}, "я": {},
	"с": {}, "со": {}, "как": {}, "а": {}, "то": {}, "все": {}, "она": {}, "так": {},
	"его": {}, "но": {}, "да": {}, "ты": {}, "к": {}, "у": {}, "же": {}, "вы": {},
	"за": {}, "бы": {}, "по": {}, "только": {}, "ее": {}, "мне": {}, "было": {},
	"вот": {}, "от": {}, "меня": {}, "еще": {}, "нет": {}, "о": {}, "из": {},
	"ему": {}, "теперь": {}, "когда": {}, "даже": {}, "ну": {}, "ли": {}, "если": {},
	"уже": {}, "или": {}, "ни": {}, "был": {}, "него": {}, "до": {}, "вас": {},
	"нибудь": {}, "опять": {}, "уж": {}, "вам": {}, "ведь": {}, "там": {}, "потом": {},
	"себя": {}, "ничего": {}, "ей": {}, "может": {}, "они": {}, "тут": {}, "где": {},
	"есть": {}, "надо": {}, "ней": {}, "для": {}, "мы": {}, "тебя": {}, "их": {},
	"чем": {}, "была": {}, "сам": {}, "чтоб": {}, "без": {}, "будто": {}, "чего": {},
	"раз": {}, "тоже": {}, "себе": {}, "под": {}, "будет": {}, "тогда": {}, "кто": {},
	"этот": {}, "того": {}, "потому": {}, "этого": {}, "какой": {}, "ним": {},
	"здесь": {}, "этом": {}, "один": {}, "почти": {}, "мой": {}, "тем": {},
	"чтобы": {}, "нее": {}, "сейчас": {}, "были": {}, "куда": {}, "зачем": {},
	"всех": {}, "можно": {}, "при": {}, "об": {}, "хоть": {}, "после": {},
	"над": {}, "больше": {}, "тот": {}, "через": {}, "эти": {}, "нас": {},
	"про": {}, "них": {}, "какая": {}, "много": {}, "разве": {}, "эту": {},
	"моя": {}, "свою": {}, "этой": {}, "перед": {}, "иногда": {}, "лучше": {},
	"чуть": {}, "том": {}, "такой": {}, "им": {}, "более": {}, "всегда": {},
	"конечно": {}, "всю": {}, "между": {},
	// a few english ones that leak into russian chats
	"the": {}, "and": {}, "for": {}, "was": {}, "what": {}, "who": {}, "when": {},
}

// Noun/adjective endings, longest first. A suffix is stripped only when the
// remainder keeps at least three runes, otherwise short words collapse into
// garbage stems.
var stemSuffixes = []string{
	"иями", "ями", "ами", "ого", "его", "ому", "ему", "ыми", "ими",
	"ует", "уют", "ают", "яют", "ала", "яла", "или", "ыли",
	"ах", "ях", "ам", "ям", "ом", "ем", "ой", "ей", "ов", "ев",
	"ый", "ий", "ая", "яя", "ое", "ее", "ую", "юю", "ть",
	"ы", "и", "а", "я", "о", "е", "у", "ю", "ь",
}

// IsStopWord reports membership in the fixed stop-word table.
func IsStopWord(w string) bool {
	_, ok := stopWords[strings.ToLower(w)]
	return ok
}

// StemWord strips the longest matching russian suffix while keeping at
// least three runes.
func StemWord(w string) string {
	runes := []rune(strings.ToLower(w))
	for _, suf := range stemSuffixes {
		sufRunes := []rune(suf)
		if len(runes)-len(sufRunes) >= 3 && strings.HasSuffix(string(runes), suf) {
			return string(runes[:len(runes)-len(sufRunes)])
		}
	}
	return string(runes)
}

func tokenize(q string) []string {
	return strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ExtractSearchTerms produces the sparse-search term string: lower-cased
// tokens longer than two runes, stop words removed, deduplicated.
func ExtractSearchTerms(q string) string {
	seen := map[string]struct{}{}
	var out []string
	for _, tok := range tokenize(q) {
		if len([]rune(tok)) <= 2 {
			continue
		}
		if IsStopWord(tok) {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

// ExtractILikeWords returns up to max keywords (len >= 3, non-stop) plus
// their stems for substring search.
func ExtractILikeWords(q string, max int) []string {
	if max <= 0 {
		max = 5
	}
	seen := map[string]struct{}{}
	var out []string
	add := func(w string) {
		if _, dup := seen[w]; dup {
			return
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	count := 0
	for _, tok := range tokenize(q) {
		if len([]rune(tok)) < 3 || IsStopWord(tok) {
			continue
		}
		if count >= max {
			break
		}
		count++
		add(tok)
		if stem := StemWord(tok); stem != tok {
			add(stem)
		}
	}
	return out
}

// Normalize rejects strings with no letters or digits (invisible characters,
// bare punctuation, emoji-only) and otherwise returns the trimmed original.
func Normalize(q string) string {
	trimmed := strings.TrimSpace(q)
	for _, r := range trimmed {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return trimmed
		}
	}
	return ""
}
