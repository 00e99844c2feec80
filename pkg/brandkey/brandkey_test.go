package brandkey

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var keyPattern = regexp.MustCompile(`^[a-z0-9]+$`)

type stringer string

func (s stringer) String() string { return string(s) }

type canonical struct{ name string }

func (c *canonical) Resolve() string { return c.name }

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"special case alias", "My Flame Lifestyle", "myflame"},
		{"special case ignores case", "  MY FLAME LIFESTYLE ", "myflame"},
		{"accented special case", "Émile Henry", "emilehenry"},
		{"diacritics stripped", "Café Crème", "cafecreme"},
		{"sharp s", "Weißenfels", "weissenfels"},
		{"scandinavian", "Bjørn Sæther", "bjornsather"},
		{"punctuation removed", "Dr. Oetker & Co.", "droetkerco"},
		{"digits kept", "3M", "3m"},
		{"empty", "", Unknown},
		{"whitespace", "   ", Unknown},
		{"only symbols", "!!!", Unknown},
		{"non latin", "東京", Unknown},
		{"nil", nil, Unknown},
		{"int", 42, "42"},
		{"float", 1.5, "15"},
		{"bool", true, "true"},
		{"stringer", stringer("Le Creuset"), "lecreuset"},
		{"resolver", &canonical{name: "Staub"}, "staub"},
		{"structured map", map[string]any{"canonicalName": "Zwilling J.A. Henckels"}, "zwillingjahenckels"},
		{"structured map without canonical field", map[string]any{"id": 7}, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeNilResolverDoesNotPanic(t *testing.T) {
	var c *canonical
	assert.Equal(t, Unknown, Normalize(c))
}

func TestNormalizeOutputShapeAndIdempotence(t *testing.T) {
	inputs := []any{
		"My Flame Lifestyle", "Émile Henry", "ÅSA Selection", "Kähler", "Ørskov",
		"WMF", "  ", "L'Occitane en Provence", "Œuvre", "Łódź", "Þór", 0, -3, nil,
	}

	for _, in := range inputs {
		got := Normalize(in)
		if got != Unknown {
			assert.Regexp(t, keyPattern, got, "input %v", in)
		}
		assert.Equal(t, got, Normalize(got), "normalize must be idempotent for %v", in)
	}
}
