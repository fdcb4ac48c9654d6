package catalog

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize maps a raw column name onto the catalog's name alphabet:
// NFC, lowercase, '-', '.' and ' ' become '_', anything else outside
// [a-z0-9_] is dropped.
//
//	Normalize("Number Of Persons-Killed") == "number_of_persons_killed"
func Normalize(name string) string {
	name = strings.ToLower(norm.NFC.String(name))

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '-' || r == '.' || r == ' ':
			b.WriteByte('_')
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		}
	}
	return b.String()
}
