// Package highlight maps live narration position onto the word being voiced.
package highlight

import (
	"sort"

	"taleweaver/internal/domain/story"
)

// Locate returns the index of the token being voiced at positionMs.
//
// Tokens must be sorted by StartMs and must not overlap. When positionMs falls
// inside a token's [StartMs, EndMs) interval that token's index is returned.
// In a gap between tokens, or past the last token, the last completed token is
// returned. Positions before the first token (and empty input) yield -1.
func Locate(tokens []story.TimedToken, positionMs int64) int {
	// First token starting strictly after the position; the one before it is
	// either the containing token or, since intervals never overlap, the last
	// token that already ended.
	next := sort.Search(len(tokens), func(i int) bool {
		return tokens[i].StartMs > positionMs
	})
	return next - 1
}

// Contains reports whether positionMs lies inside the token interval.
func Contains(tok story.TimedToken, positionMs int64) bool {
	return tok.StartMs <= positionMs && positionMs < tok.EndMs
}
