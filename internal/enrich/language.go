package enrich

import "strings"

var languageTokens = map[string]string{
	"en": "en", "eng": "en", "english": "en",
	"de": "de", "ger": "de", "german": "de", "deutsch": "de",
	"fr": "fr", "fra": "fr", "french": "fr",
	"es": "es", "spa": "es", "spanish": "es",
	"it": "it", "ita": "it", "italian": "it",
	"nl": "nl", "dutch": "nl",
	"pt": "pt", "por": "pt", "portuguese": "pt",
}

// languageHint guesses a document language from filename tokens, e.g.
// "rechnung_de_2025.pdf" hints "de". Returns "" when nothing matches; the
// OCR service then detects the language itself.
func languageHint(name string) string {
	lower := strings.ToLower(name)
	if dot := strings.LastIndex(lower, "."); dot > 0 {
		lower = lower[:dot]
	}

	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.' || r == '(' || r == ')'
	})
	for _, tok := range tokens {
		if lang, ok := languageTokens[tok]; ok {
			return lang
		}
	}
	return ""
}
