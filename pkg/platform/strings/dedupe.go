// Package strings holds parsing helpers for comma-separated settings.
package strings

import (
	"slices"
	"strings"
)

// SplitList splits raw on sep, trims each item, and drops blanks and repeats
// while keeping first-seen order. An empty input yields nil.
//
//	SplitList("a:9092, b:9092,,a:9092", ",") // ["a:9092" "b:9092"]
func SplitList(raw, sep string) []string {
	var out []string
	for item := range strings.SplitSeq(raw, sep) {
		item = strings.TrimSpace(item)
		if item == "" || slices.Contains(out, item) {
			continue
		}
		out = append(out, item)
	}
	return out
}
