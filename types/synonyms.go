package types

import "strings"

// Side synonyms as they show up in chip labels, row text and class names
var (
	UpSynonyms   = []string{"up", "buy", "long", "bull", "call", "higher"}
	DownSynonyms = []string{"down", "sell", "short", "bear", "put", "lower"}
)

// Synonyms returns the synonym list for a side
func Synonyms(d Direction) []string {
	switch d {
	case Up:
		return UpSynonyms
	case Down:
		return DownSynonyms
	}
	return nil
}

// NormalizeText lowercases and collapses whitespace
func NormalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// MentionsSide reports a case-insensitive substring match against the side's synonyms
func MentionsSide(s string, d Direction) bool {
	t := NormalizeText(s)
	if t == "" {
		return false
	}
	for _, syn := range Synonyms(d) {
		if strings.Contains(t, syn) {
			return true
		}
	}
	return false
}

// DirectionInText returns the single side mentioned by s.
// Text mentioning both sides, or neither, is Unknown.
func DirectionInText(s string) Direction {
	up := MentionsSide(s, Up)
	down := MentionsSide(s, Down)
	switch {
	case up && !down:
		return Up
	case down && !up:
		return Down
	}
	return Unknown
}
