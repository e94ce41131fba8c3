package chat

import "unicode/utf8"

// MaxDraftUnits caps the draft text, counted in UTF-16 code units.
const MaxDraftUnits = 4096

// TextLength returns the length of s in UTF-16 code units. Runes outside
// the Basic Multilingual Plane count twice; invalid bytes count once.
func TextLength(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 && r <= utf8.MaxRune {
			n += 2
		} else {
			n++
		}
	}
	return n
}
