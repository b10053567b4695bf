package resolver

import (
	"fmt"
	"sort"
	"strings"
)

// NotFoundError reports a name that does not resolve to anything.
type NotFoundError struct {
	Kind       Kind
	Name       string
	Suggestion string // closest known name, may be empty
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s [%s] not found", e.Kind, e.Name)
	if e.Suggestion != "" {
		msg += fmt.Sprintf("; did you mean [%s]?", e.Suggestion)
	}
	return msg
}

// WrongKindError reports a name that exists but is not what the caller
// asked for, e.g. a method used as a field.
type WrongKindError struct {
	Name string
	Want Kind
	Got  Kind
}

func (e *WrongKindError) Error() string {
	return fmt.Sprintf("[%s] is a %s, not a %s", e.Name, e.Got, e.Want)
}

// AmbiguousError reports an overloaded method named without a signature.
type AmbiguousError struct {
	Name       string
	Candidates []string // descriptors
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("method [%s] is overloaded, give a signature: %s", e.Name, strings.Join(e.Candidates, ", "))
}

// ---------------------------------------------------------------------------
// Suggestions
// ---------------------------------------------------------------------------

// Suggest returns the candidate closest to name by edit distance, or ""
// when nothing is close enough to be a plausible typo.
func Suggest(name string, candidates []string) string {
	if name == "" || len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)

	limit := len(name) / 3
	if limit < 2 {
		limit = 2
	}
	best, bestDist := "", limit+1
	lower := strings.ToLower(name)
	for _, c := range candidates {
		if c == name {
			continue
		}
		d := distance(lower, strings.ToLower(c))
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// distance is the Levenshtein distance between a and b.
func distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
