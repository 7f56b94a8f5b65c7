package sessioncache

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Match is a session whose query fuzzily matched a lookup.
type Match struct {
	Summary
	Distance int `json:"distance"`
}

// Find returns sessions whose search term fuzzily contains text, closest
// matches first and newer sessions first on equal distance.
func (c *Cache) Find(text string) ([]Match, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	summaries, err := c.List()
	if err != nil {
		return nil, err
	}
	targets := make([]string, len(summaries))
	for i, s := range summaries {
		targets[i] = s.Query
	}
	ranks := fuzzy.RankFindNormalizedFold(text, targets)
	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].Distance == ranks[j].Distance {
			return ranks[i].OriginalIndex > ranks[j].OriginalIndex
		}
		return ranks[i].Distance < ranks[j].Distance
	})
	matches := make([]Match, 0, len(ranks))
	for _, rank := range ranks {
		matches = append(matches, Match{Summary: summaries[rank.OriginalIndex], Distance: rank.Distance})
	}
	return matches, nil
}
