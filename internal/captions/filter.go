package captions

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Noise-filter thresholds. These are pragmatic defaults against whisper
// hallucinations (stray punctuation, breath sounds recognized as symbols),
// not principled language detection; tune against observed noise before
// tightening.
const (
	// MinTextLength is the minimum rune count of a kept segment.
	MinTextLength = 3
	// MinLetters is the minimum count of unicode letters in a kept segment.
	MinLetters = 2
	// MinAlphaRatio is the minimum fraction of letters over total runes.
	MinAlphaRatio = 0.4
)

// Keep reports whether a recognized segment is worth persisting. The decision
// is pure: trimmed text, rune length, letter count, and alphabetic ratio.
func Keep(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	total := utf8.RuneCountInString(text)
	if total < MinTextLength {
		return false
	}
	letters := letterCount(text)
	if letters < MinLetters {
		return false
	}
	return float64(letters)/float64(total) >= MinAlphaRatio
}

// letterCount counts runes in the unicode letter class, which covers
// extended Latin and non-Latin scripts alike.
func letterCount(text string) int {
	n := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
