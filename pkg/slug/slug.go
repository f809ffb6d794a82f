package slug

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

var transliterate = strings.NewReplacer(
	"á", "a", "à", "a", "ä", "a", "â", "a", "ã", "a",
	"é", "e", "è", "e", "ë", "e", "ê", "e",
	"í", "i", "ì", "i", "ï", "i", "î", "i", "ı", "i",
	"ó", "o", "ò", "o", "ö", "o", "ô", "o", "õ", "o",
	"ú", "u", "ù", "u", "ü", "u", "û", "u",
	"ñ", "n", "ç", "c", "ğ", "g", "ş", "s",
)

// Generate creates a URL-friendly slug from name, transliterating common
// Latin accented letters:
//
//   - "Zapatillas Niño" → "zapatillas-nino"
//   - "  Café   con Leche! " → "cafe-con-leche"
func Generate(name string) string {
	s := transliterate.Replace(strings.ToLower(strings.TrimSpace(name)))
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// WithSuffix joins the slug of name and suffix, trimming the slug so the
// result is at most maxLen bytes.
func WithSuffix(name, suffix string, maxLen int) string {
	base := Generate(name)
	if suffix == "" {
		return truncate(base, maxLen)
	}
	if base == "" {
		return truncate(suffix, maxLen)
	}
	room := maxLen - len(suffix) - 1
	if room <= 0 {
		return truncate(suffix, maxLen)
	}
	return strings.TrimRight(truncate(base, room), "-") + "-" + suffix
}

func truncate(s string, n int) string {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}
