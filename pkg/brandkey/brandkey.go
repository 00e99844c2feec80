// Package brandkey приводит произвольное название бренда/производителя
// к каноническому сегменту пути в хранилище: [a-z0-9]+ или "unknown".
package brandkey

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Unknown возвращается для пустого или нераспознаваемого ввода.
const Unknown = "unknown"

// specialCases сверяется до общей нормализации, без учёта регистра.
var specialCases = map[string]string{
	"my flame lifestyle": "myflame",
	"émile henry":        "emilehenry",
}

// letterSubstitutions покрывает буквы, которые не раскладываются через NFD.
var letterSubstitutions = strings.NewReplacer(
	"ß", "ss",
	"ø", "o",
	"æ", "a",
	"œ", "o",
	"đ", "d",
	"ł", "l",
	"þ", "th",
)

// canonicalFields — ключи структурированного значения, из которых берётся каноническое имя.
var canonicalFields = []string{"canonicalName", "canonical_name", "name"}

// Resolver реализуется значениями, которые сами знают своё каноническое имя.
type Resolver interface {
	Resolve() string
}

// Normalize возвращает ключ бренда для любого входного значения. Никогда не паникует.
func Normalize(v any) (key string) {
	defer func() {
		if recover() != nil {
			key = Unknown
		}
	}()

	raw := strings.TrimSpace(coerce(v))
	if raw == "" {
		return Unknown
	}

	if alias, ok := specialCases[strings.ToLower(raw)]; ok {
		return alias
	}

	s := strings.ToLower(raw)
	s = stripDiacritics(s)
	s = letterSubstitutions.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}

	if b.Len() == 0 {
		return Unknown
	}

	return b.String()
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func coerce(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case *string:
		if val == nil {
			return ""
		}
		return *val
	case Resolver:
		return val.Resolve()
	case map[string]any:
		for _, f := range canonicalFields {
			if s, ok := val[f]; ok {
				return coerce(s)
			}
		}
		return ""
	case map[string]string:
		for _, f := range canonicalFields {
			if s, ok := val[f]; ok {
				return s
			}
		}
		return ""
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
