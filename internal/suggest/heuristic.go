package suggest

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/mettafore/evals-workshop/internal/models"
)

var tokenPattern = regexp.MustCompile(`[A-Za-z]{4,}`)

// Heuristic suggests failure modes from the most frequent tokens in the
// email's open codes. It needs no network and never fails, which makes it
// the terminal fallback in a provider chain.
type Heuristic struct {
	maxSuggestions int
}

// NewHeuristic creates the token-frequency suggester.
func NewHeuristic() *Heuristic {
	return &Heuristic{maxSuggestions: 5}
}

// Name implements Provider.
func (h *Heuristic) Name() string { return "heuristic" }

// Close implements Provider.
func (h *Heuristic) Close() error { return nil }

// Suggest counts 4+ letter tokens across the open codes and proposes the
// most frequent ones as candidate failure modes.
func (h *Heuristic) Suggest(_ context.Context, input Input) ([]models.Suggestion, error) {
	counts := make(map[string]int)
	var order []string

	for _, code := range input.OpenCodes {
		for _, token := range tokenPattern.FindAllString(strings.ToLower(code), -1) {
			if counts[token] == 0 {
				order = append(order, token)
			}
			counts[token]++
		}
	}

	// Frequency descending, first appearance breaking ties so output is
	// stable across calls.
	rank := make(map[string]int, len(order))
	for i, token := range order {
		rank[token] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		if counts[order[i]] != counts[order[j]] {
			return counts[order[i]] > counts[order[j]]
		}
		return rank[order[i]] < rank[order[j]]
	})

	if len(order) > h.maxSuggestions {
		order = order[:h.maxSuggestions]
	}

	suggestions := make([]models.Suggestion, 0, len(order))
	for _, token := range order {
		suggestions = append(suggestions, models.Suggestion{
			DisplayName: titleCase(token),
			Slug:        token,
			Definition:  "Auto-suggested from frequent token '" + token + "'",
		})
	}

	return suggestions, nil
}

func titleCase(word string) string {
	if word == "" {
		return word
	}
	return strings.ToUpper(word[:1]) + word[1:]
}
