package feed

import (
	"html"
	"regexp"
	"strings"
)

// Translation is one entry of a translated string.
type Translation struct {
	Text     string
	Language string
}

var htmlTag = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)

func isHTML(t Translation) bool {
	lang := strings.ToLower(t.Language)
	return strings.Contains(lang, "html") || htmlTag.MatchString(t.Text)
}

func isEnglish(t Translation) bool {
	lang := strings.ToLower(t.Language)
	return lang == "" || lang == "en" || strings.HasPrefix(lang, "en-")
}

// PreferredText picks the display text from a set of translations: English
// plain text first, then any plain text, then tag-stripped HTML. Returns ""
// when nothing has text.
func PreferredText(translations []Translation) string {
	for _, t := range translations {
		if t.Text != "" && isEnglish(t) && !isHTML(t) {
			return strings.TrimSpace(t.Text)
		}
	}
	for _, t := range translations {
		if t.Text != "" && !isHTML(t) {
			return strings.TrimSpace(t.Text)
		}
	}
	for _, t := range translations {
		if t.Text != "" {
			plain := html.UnescapeString(htmlTag.ReplaceAllString(t.Text, " "))
			if plain = strings.Join(strings.Fields(plain), " "); plain != "" {
				return plain
			}
		}
	}
	return ""
}
