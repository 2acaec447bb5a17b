package language

import (
	"strings"

	"golang.org/x/text/language"
)

// NormalizeSlug lowercases a language slug and joins its subtags with "-"
// ("EN " -> "en", "pt_BR" -> "pt-br"). Blank input, or any subtag holding
// something other than ASCII letters and digits, yields "".
func NormalizeSlug(raw string) string {
	subtags := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(raw)), func(r rune) bool {
		return r == '-' || r == '_'
	})
	for _, subtag := range subtags {
		if strings.TrimFunc(subtag, isSlugRune) != "" {
			return ""
		}
	}
	return strings.Join(subtags, "-")
}

// NormalizeLocale canonicalizes a locale to the underscore form used by the
// host ("en-us" -> "en_US"). Returns an empty string for unparseable input.
func NormalizeLocale(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	tag, err := language.Parse(strings.ReplaceAll(trimmed, "_", "-"))
	if err != nil {
		return ""
	}

	base, _ := tag.Base()
	region, confidence := tag.Region()
	if confidence == language.Exact {
		return base.String() + "_" + region.String()
	}
	return base.String()
}

func isSlugRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
