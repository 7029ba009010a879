package dispatch

import (
	"strings"

	"golang.org/x/text/language"
)

// DefaultSynthesisLanguage is used when a podcast's language can't be read.
const DefaultSynthesisLanguage = "en-US"

// Podcasts store either a language name picked in the dashboard or an ISO code.
var languageNames = map[string]string{
	"english":    "en",
	"hebrew":     "he",
	"russian":    "ru",
	"arabic":     "ar",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"ukrainian":  "uk",
	"japanese":   "ja",
	"chinese":    "zh",
}

// NormalizeLanguage converts the stored podcast language into the
// language-REGION form the synthesis worker expects, e.g. "hebrew" -> "he-IL".
// A missing region is filled with the most likely one for the language.
func NormalizeLanguage(stored string) string {
	s := strings.ToLower(strings.TrimSpace(stored))
	if s == "" {
		return DefaultSynthesisLanguage
	}
	if code, ok := languageNames[s]; ok {
		s = code
	}

	tag, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil || tag == language.Und {
		return DefaultSynthesisLanguage
	}

	base, _ := tag.Base()
	region, _ := tag.Region()
	return base.String() + "-" + region.String()
}
