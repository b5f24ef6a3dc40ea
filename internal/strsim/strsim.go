// Package strsim provides string similarity ratios for indication matching.
// All ratios are in [0, 1] where 1 means identical. The underlying distance
// is Damerau-Levenshtein computed over runes so Unicode condition names
// compare correctly.
package strsim

import (
	"sort"
	"strings"
)

// Distance computes the Damerau-Levenshtein distance between two strings:
// the minimum number of single-character insertions, deletions,
// substitutions, or adjacent transpositions required to change one into the
// other. Works on runes to properly handle Unicode.
func Distance(a, b string) int {
	runesA := []rune(a)
	runesB := []rune(b)

	lenA := len(runesA)
	lenB := len(runesB)

	if lenA == 0 {
		return lenB
	}
	if lenB == 0 {
		return lenA
	}

	// Three rolling rows; the i-2 row is needed for transpositions.
	prevPrevRow := make([]int, lenB+1)
	prevRow := make([]int, lenB+1)
	currRow := make([]int, lenB+1)

	for j := 0; j <= lenB; j++ {
		prevRow[j] = j
	}

	for i := 1; i <= lenA; i++ {
		currRow[0] = i

		for j := 1; j <= lenB; j++ {
			cost := 0
			if runesA[i-1] != runesB[j-1] {
				cost = 1
			}

			// Standard operations: deletion, insertion, substitution
			deletion := prevRow[j] + 1
			insertion := currRow[j-1] + 1
			substitution := prevRow[j-1] + cost

			currRow[j] = min3(deletion, insertion, substitution)

			// Transposition operation (Damerau extension)
			if i > 1 && j > 1 &&
				runesA[i-1] == runesB[j-2] &&
				runesA[i-2] == runesB[j-1] {
				transposition := prevPrevRow[j-2] + cost
				if transposition < currRow[j] {
					currRow[j] = transposition
				}
			}
		}

		// Rotate rows: prevPrevRow <- prevRow <- currRow
		prevPrevRow, prevRow, currRow = prevRow, currRow, prevPrevRow
	}

	return prevRow[lenB]
}

// DistanceWithLimit computes the Damerau-Levenshtein distance with early
// termination. Returns maxDistance + 1 as soon as the distance provably
// exceeds maxDistance, which keeps vocabulary scans cheap.
func DistanceWithLimit(a, b string, maxDistance int) int {
	runesA := []rune(a)
	runesB := []rune(b)

	lenA := len(runesA)
	lenB := len(runesB)

	// Length difference alone already bounds the distance from below.
	lengthDiff := lenA - lenB
	if lengthDiff < 0 {
		lengthDiff = -lengthDiff
	}
	if lengthDiff > maxDistance {
		return maxDistance + 1
	}

	if lenA == 0 {
		return lenB
	}
	if lenB == 0 {
		return lenA
	}

	prevPrevRow := make([]int, lenB+1)
	prevRow := make([]int, lenB+1)
	currRow := make([]int, lenB+1)

	for j := 0; j <= lenB; j++ {
		prevRow[j] = j
	}

	for i := 1; i <= lenA; i++ {
		currRow[0] = i
		minInRow := i

		for j := 1; j <= lenB; j++ {
			cost := 0
			if runesA[i-1] != runesB[j-1] {
				cost = 1
			}

			deletion := prevRow[j] + 1
			insertion := currRow[j-1] + 1
			substitution := prevRow[j-1] + cost

			currRow[j] = min3(deletion, insertion, substitution)

			if i > 1 && j > 1 &&
				runesA[i-1] == runesB[j-2] &&
				runesA[i-2] == runesB[j-1] {
				transposition := prevPrevRow[j-2] + cost
				if transposition < currRow[j] {
					currRow[j] = transposition
				}
			}

			if currRow[j] < minInRow {
				minInRow = currRow[j]
			}
		}

		// Once every cell in a row exceeds the limit the final distance must too.
		if minInRow > maxDistance {
			return maxDistance + 1
		}

		prevPrevRow, prevRow, currRow = prevRow, currRow, prevPrevRow
	}

	return prevRow[lenB]
}

// Ratio returns the similarity of two strings as 1 - distance/maxLen.
// Identical strings score 1.0; strings with nothing in common approach 0.
func Ratio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := len([]rune(a))
	if lb := len([]rune(b)); lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(Distance(a, b))/float64(maxLen)
}

// RatioAtLeast returns the similarity when it is at least floor, and 0
// otherwise. The floor translates into a distance budget so vocabulary scans
// terminate early on hopeless pairs.
func RatioAtLeast(a, b string, floor float64) float64 {
	if a == b {
		return 1.0
	}
	maxLen := len([]rune(a))
	if lb := len([]rune(b)); lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 1.0
	}
	budget := int((1.0-floor)*float64(maxLen) + 1e-9)
	dist := DistanceWithLimit(a, b, budget)
	if dist > budget {
		return 0
	}
	ratio := 1.0 - float64(dist)/float64(maxLen)
	if ratio < floor {
		return 0
	}
	return ratio
}

// PartialRatio returns the best Ratio of the shorter string against every
// window of the same length in the longer string. "adhd" inside
// "adhd combined type" scores 1.0.
func PartialRatio(a, b string) float64 {
	runesA := []rune(a)
	runesB := []rune(b)
	if len(runesA) > len(runesB) {
		runesA, runesB = runesB, runesA
	}
	if len(runesA) == 0 {
		if len(runesB) == 0 {
			return 1.0
		}
		return 0
	}
	if len(runesA) == len(runesB) {
		return Ratio(string(runesA), string(runesB))
	}

	short := string(runesA)
	best := 0.0
	for start := 0; start+len(runesA) <= len(runesB); start++ {
		window := string(runesB[start : start+len(runesA)])
		if r := Ratio(short, window); r > best {
			best = r
			if best == 1.0 {
				break
			}
		}
	}
	return best
}

// TokenSortRatio tokenizes both strings, sorts the tokens, and compares the
// rejoined forms, so "deficit attention" matches "attention deficit".
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortTokens(a), sortTokens(b))
}

func sortTokens(s string) string {
	tokens := strings.Fields(strings.ToLower(s))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// min3 is a helper function to find the minimum of three integers
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
