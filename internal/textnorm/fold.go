// Package textnorm folds Vietnamese text for accent- and case-insensitive
// matching.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// đ has no decomposition, so it is mapped explicitly.
var letterD = strings.NewReplacer("đ", "d", "Đ", "d")

// Fold lowercases s, strips combining marks and collapses whitespace.
// "Bách Hóa Xanh" and "bach  hoa xanh" fold to the same string.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = letterD.Replace(strings.ToLower(out))
	return strings.Join(strings.Fields(out), " ")
}

// ContainsAny reports whether folded s contains any of the folded needles.
func ContainsAny(s string, needles ...string) bool {
	fs := Fold(s)
	if fs == "" {
		return false
	}
	for _, n := range needles {
		if fn := Fold(n); fn != "" && strings.Contains(fs, fn) {
			return true
		}
	}
	return false
}
