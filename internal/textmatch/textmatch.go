// Package textmatch provides the string normalization and fuzzy matching
// used to grade fill-in-the-blank answers.
package textmatch

import "strings"

// DefaultBaseThreshold is the minimum edit distance tolerated by FuzzyMatch
// regardless of reference length.
const DefaultBaseThreshold = 2

const strippedPunct = `.,!?;:'"`

// Normalize lowercases, strips common punctuation, trims, and collapses
// whitespace runs to a single space. Deterministic and pure.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(strippedPunct, r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Distance computes the Levenshtein edit distance between two strings
// (insertion, deletion, substitution each cost 1), over runes.
func Distance(a, b string) int {
	ar := []rune(a)
	br := []rune(b)
	n, m := len(ar), len(br)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}
	dp := make([]int, m+1)
	for j := 0; j <= m; j++ {
		dp[j] = j
	}
	for i := 1; i <= n; i++ {
		prev := dp[0]
		dp[0] = i
		for j := 1; j <= m; j++ {
			tmp := dp[j]
			cost := 0
			if ar[i-1] != br[j-1] {
				cost = 1
			}
			ins := dp[j] + 1
			del := dp[j-1] + 1
			sub := prev + cost
			dp[j] = min3(ins, del, sub)
			prev = tmp
		}
	}
	return dp[m]
}

// FuzzyMatch reports whether candidate matches reference after
// normalization, tolerating DefaultBaseThreshold edits.
func FuzzyMatch(candidate, reference string) bool {
	return FuzzyMatchThreshold(candidate, reference, DefaultBaseThreshold)
}

// FuzzyMatchThreshold matches with an explicit base threshold. The effective
// threshold adapts to the reference length: max(base, floor(0.15*len)), so
// short answers need near-exact typing while longer answers tolerate
// proportionally more edits.
func FuzzyMatchThreshold(candidate, reference string, base int) bool {
	nc := Normalize(candidate)
	nr := Normalize(reference)
	if nc == nr {
		return true
	}
	adaptive := int(0.15 * float64(len([]rune(nr))))
	if base > adaptive {
		adaptive = base
	}
	return Distance(nc, nr) <= adaptive
}

// Similarity returns how alike two strings are after normalization, as an
// integer percentage 0-100. Two empty strings are fully similar.
func Similarity(a, b string) int {
	na := Normalize(a)
	nb := Normalize(b)
	if na == nb {
		return 100
	}
	d := Distance(na, nb)
	maxLen := len([]rune(na))
	if l := len([]rune(nb)); l > maxLen {
		maxLen = l
	}
	return int(float64(100)*(1-float64(d)/float64(maxLen)) + 0.5)
}

func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}
