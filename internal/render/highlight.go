package render

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// excerptRadius — сколько символов контекста оставлять вокруг первого совпадения.
const excerptRadius = 60

var tagRe = regexp.MustCompile(`<[^>]*>`)

// Highlighter строит HTML-выдержку вокруг первого совпадения запроса и
// оборачивает все совпадения в <mark>.
type Highlighter struct{}

func NewHighlighter() *Highlighter { return &Highlighter{} }

// Highlight принимает HTML или обычный текст. Пустая строка — совпадений нет.
func (h *Highlighter) Highlight(query, content string) string {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return ""
	}
	text := html.UnescapeString(tagRe.ReplaceAllString(content, " "))
	text = strings.Join(strings.Fields(text), " ")
	lower := strings.ToLower(text)

	first := -1
	for _, t := range terms {
		if i := strings.Index(lower, t); i >= 0 && (first < 0 || i < first) {
			first = i
		}
	}
	if first < 0 {
		return ""
	}

	start := runeBoundary(text, first-excerptRadius)
	end := runeBoundary(text, first+excerptRadius)
	excerpt := text[start:end]

	var b strings.Builder
	if start > 0 {
		b.WriteString("…")
	}
	b.WriteString(markTerms(excerpt, terms))
	if end < len(text) {
		b.WriteString("…")
	}
	return b.String()
}

func runeBoundary(s string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

func markTerms(s string, terms []string) string {
	lower := strings.ToLower(s)
	var b strings.Builder
	i := 0
	for i < len(s) {
		matched := 0
		for _, t := range terms {
			if strings.HasPrefix(lower[i:], t) && len(t) > matched {
				matched = len(t)
			}
		}
		if matched > 0 {
			b.WriteString("<mark>")
			b.WriteString(html.EscapeString(s[i : i+matched]))
			b.WriteString("</mark>")
			i += matched
			continue
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		b.WriteString(html.EscapeString(s[i : i+size]))
		i += size
	}
	return b.String()
}
