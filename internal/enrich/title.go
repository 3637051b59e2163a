package enrich

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const maxTitleLength = 80

// NormalizeTitle cleans a model-generated title for display: collapse
// whitespace, strip wrapping quotes and trailing punctuation, title-case,
// and truncate overlong output at a word boundary.
func NormalizeTitle(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	title = strings.Trim(title, `"'`)
	title = strings.TrimRight(title, ".!,;:")
	if title == "" {
		return ""
	}
	if len(title) > maxTitleLength {
		cut := title[:maxTitleLength]
		if idx := strings.LastIndex(cut, " "); idx > 0 {
			cut = cut[:idx]
		}
		title = cut
	}
	return cases.Title(language.Und).String(title)
}
