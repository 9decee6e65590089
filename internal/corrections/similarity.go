package corrections

import (
	"strings"
	"unicode"

	"github.com/joseph-ayodele/lab-report-parser/constants"
)

// Similar reports whether a and b match after lowercasing and removing whitespace,
// either exactly or with a similarity percentage at or above the threshold.
func Similar(a, b string) bool {
	ca, cb := squash(a), squash(b)
	if ca == cb {
		return true
	}
	return SimilarityPercent(ca, cb) >= constants.SimilarityThreshold
}

// SimilarityPercent is the classic "similar text" score: the longest common
// substring counts, then both remainders are scored recursively.
// The result is 2*common*100 / (len(a)+len(b)), measured in runes.
func SimilarityPercent(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 0
	}
	return float64(commonRunes(ra, rb)*2) * 100 / float64(total)
}

func commonRunes(a, b []rune) int {
	posA, posB, n := longestCommon(a, b)
	if n == 0 {
		return 0
	}
	sum := n
	if posA > 0 && posB > 0 {
		sum += commonRunes(a[:posA], b[:posB])
	}
	if posA+n < len(a) && posB+n < len(b) {
		sum += commonRunes(a[posA+n:], b[posB+n:])
	}
	return sum
}

// longestCommon finds the first longest common substring.
func longestCommon(a, b []rune) (posA, posB, n int) {
	for i := range a {
		for j := range b {
			k := 0
			for i+k < len(a) && j+k < len(b) && a[i+k] == b[j+k] {
				k++
			}
			if k > n {
				posA, posB, n = i, j, k
			}
		}
	}
	return posA, posB, n
}

func squash(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}
