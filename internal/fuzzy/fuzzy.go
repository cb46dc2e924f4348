// Package fuzzy provides string similarity scores in [0,1].
//
// Every function lower-cases and trims its inputs and returns 0 when either
// side is empty.
package fuzzy

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// EditDistanceRatio is 1 - levenshtein(a, b) / max(len(a), len(b)),
// measured in runes.
func EditDistanceRatio(a, b string) float64 {
	a, b = prepare(a), prepare(b)
	if a == "" || b == "" {
		return 0
	}
	return ratio(a, b)
}

// SubstringRatio scores the best alignment of the shorter string against
// every equally long window of the longer one.
func SubstringRatio(a, b string) float64 {
	a, b = prepare(a), prepare(b)
	if a == "" || b == "" {
		return 0
	}

	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == len(long) {
		return ratio(a, b)
	}

	needle := string(short)
	if strings.Contains(string(long), needle) {
		return 1
	}

	best := 0.0
	for i := 0; i+len(short) <= len(long); i++ {
		if r := ratio(needle, string(long[i:i+len(short)])); r > best {
			best = r
			if best == 1 {
				break
			}
		}
	}
	return best
}

// TokenSortRatio compares the inputs after splitting into tokens and
// sorting them, so word order does not matter.
func TokenSortRatio(a, b string) float64 {
	ta, tb := Tokenize(a), Tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	sort.Strings(ta)
	sort.Strings(tb)
	return ratio(strings.Join(ta, " "), strings.Join(tb, " "))
}

// TokenSetRatio compares the shared tokens against each side's full token
// set, so extra tokens on one side cost little.
func TokenSetRatio(a, b string) float64 {
	sa, sb := tokenSet(a), tokenSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	var common, onlyA, onlyB []string
	for t := range sa {
		if _, ok := sb[t]; ok {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range sb {
		if _, ok := sa[t]; !ok {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(common, " ")
	withA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	withB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := ratioOrZero(withA, withB)
	if base != "" {
		best = max(best, ratioOrZero(base, withA), ratioOrZero(base, withB))
	}
	return best
}

// Comprehensive returns the maximum of the four similarity methods.
func Comprehensive(a, b string) float64 {
	return max(
		EditDistanceRatio(a, b),
		SubstringRatio(a, b),
		TokenSortRatio(a, b),
		TokenSetRatio(a, b),
	)
}

// Tokenize lower-cases s and splits it on every rune that is not a letter
// or digit.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func tokenSet(s string) map[string]struct{} {
	tokens := Tokenize(s)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func prepare(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ratio assumes both inputs are non-empty.
func ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func ratioOrZero(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return ratio(a, b)
}
