package roster

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/peereval/core"
)

// Outcome of an identity lookup.
type Outcome int

const (
	Unresolved Outcome = iota
	Resolved
	Ambiguous
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case Ambiguous:
		return "ambiguous"
	default:
		return "unresolved"
	}
}

const ratioEpsilon = 1e-9

// NameMatcher picks the candidate designating the same person as a name.
//
// Names are compared case-folded with collapsed whitespace. A single exact match wins;
// several exact matches are Ambiguous. Without exact match, every candidate is scored
// with difflib's similarity ratio (on the raw and on the word-sorted forms, the best of both)
// and the top score must reach Threshold and strictly beat the runner-up.
type NameMatcher struct {
	Threshold float64
}

func NewNameMatcher(threshold float64) NameMatcher {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.85
	}
	return NameMatcher{Threshold: threshold}
}

// Match returns the index of the matching candidate when the outcome is Resolved, -1 otherwise.
func (m NameMatcher) Match(name string, candidates []string) (int, Outcome) {
	norm := core.NormalizeName(name)
	if norm == "" || len(candidates) == 0 {
		return -1, Unresolved
	}

	normCands := make([]string, len(candidates))
	exact := make([]int, 0, 1)
	for i, c := range candidates {
		normCands[i] = core.NormalizeName(c)
		if normCands[i] == norm {
			exact = append(exact, i)
		}
	}
	switch len(exact) {
	case 0:
	case 1:
		return exact[0], Resolved
	default:
		return -1, Ambiguous
	}

	best, second, bestIdx := -1.0, -1.0, -1
	for i, c := range normCands {
		if c == "" {
			continue
		}
		score := Similarity(norm, c)
		switch {
		case score > best:
			best, second, bestIdx = score, best, i
		case score > second:
			second = score
		}
	}
	if bestIdx < 0 || best+ratioEpsilon < m.Threshold {
		return -1, Unresolved
	}
	if best-second < ratioEpsilon {
		return -1, Ambiguous
	}
	return bestIdx, Resolved
}

// Similarity returns the similarity ratio in [0, 1] of two normalized names.
func Similarity(a, b string) float64 {
	ratio := func(x, y string) float64 {
		return difflib.NewMatcher(strings.Split(x, ""), strings.Split(y, "")).Ratio()
	}
	return max(ratio(a, b), ratio(sortWords(a), sortWords(b)))
}

func sortWords(s string) string {
	words := strings.Fields(s)
	sort.Strings(words)
	return strings.Join(words, " ")
}
