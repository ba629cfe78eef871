// Package layout converts text typed on the wrong keyboard layout between
// English QWERTY and Ukrainian ЙЦУКЕН.
//
// Lookups are case-insensitive and output is always lower-case. The two tables
// are not exact inverses of each other, so a round trip does not restore every
// input: case is dropped, and Cyrillic already present in to-target input is
// left as is and then converted by to-source.
package layout

import (
	"strings"
	"unicode"

	"layoutbot/internal/domain"
)

var enToUA = map[rune]rune{
	'q': 'й', 'w': 'ц', 'e': 'у', 'r': 'к', 't': 'е', 'y': 'н',
	'u': 'г', 'i': 'ш', 'o': 'щ', 'p': 'з', '[': 'х', ']': 'ї',
	'a': 'ф', 's': 'і', 'd': 'в', 'f': 'а', 'g': 'п', 'h': 'р',
	'j': 'о', 'k': 'л', 'l': 'д', ';': 'ж', '\'': 'є', '\\': 'ґ',
	'z': 'я', 'x': 'ч', 'c': 'с', 'v': 'м', 'b': 'и', 'n': 'т',
	'm': 'ь', ',': 'б', '.': 'ю', '/': '.',
}

var uaToEN = map[rune]rune{
	'й': 'q', 'ц': 'w', 'у': 'e', 'к': 'r', 'е': 't', 'н': 'y',
	'г': 'u', 'ш': 'i', 'щ': 'o', 'з': 'p', 'х': '[', 'ї': ']',
	'ф': 'a', 'і': 's', 'в': 'd', 'а': 'f', 'п': 'g', 'р': 'h',
	'о': 'j', 'л': 'k', 'д': 'l', 'ж': ';', 'є': '\'', 'ґ': '\\',
	'я': 'z', 'ч': 'x', 'с': 'c', 'м': 'v', 'и': 'b', 'т': 'n',
	'ь': 'm', 'б': ',', 'ю': '.', '.': '/',
}

// Map converts text in the given direction. DirectionNone returns text as is.
func Map(text string, dir domain.Direction) string {
	switch dir {
	case domain.DirectionToTarget:
		return convert(text, enToUA)
	case domain.DirectionToSource:
		return convert(text, uaToEN)
	default:
		return text
	}
}

// ToUkrainian converts English-layout text to the Ukrainian layout.
func ToUkrainian(text string) string { return Map(text, domain.DirectionToTarget) }

// ToEnglish converts Ukrainian-layout text to the English layout.
func ToEnglish(text string) string { return Map(text, domain.DirectionToSource) }

func convert(text string, table map[rune]rune) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if mapped, ok := table[unicode.ToLower(r)]; ok {
			b.WriteRune(mapped)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
