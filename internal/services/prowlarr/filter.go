package prowlarr

import (
	"slices"
	"sort"
	"strings"
)

func findTag(tags []Tag, label string) (int, bool) {
	for _, tag := range tags {
		if strings.EqualFold(strings.TrimSpace(tag.Label), label) {
			return tag.ID, true
		}
	}
	return 0, false
}

func filterIndexers(indexers []Indexer, tagIDs []int, protocol string) []int {
	ids := make([]int, 0, len(indexers))
	for _, indexer := range indexers {
		if !indexer.Enable {
			continue
		}
		if !slices.ContainsFunc(indexer.Tags, func(tag int) bool { return slices.Contains(tagIDs, tag) }) {
			continue
		}
		if protocol != "" && !strings.EqualFold(indexer.Protocol, protocol) {
			continue
		}
		ids = append(ids, indexer.ID)
	}
	return ids
}

func filterReleases(releases []Release, indexerIDs []int, protocol string) []Release {
	out := make([]Release, 0, len(releases))
	for _, release := range releases {
		if !slices.Contains(indexerIDs, release.IndexerID) {
			continue
		}
		if protocol != "" && !strings.EqualFold(release.Protocol, protocol) {
			continue
		}
		out = append(out, release)
	}
	return out
}

// sortBySize orders releases largest first, keeping upstream order on ties.
func sortBySize(releases []Release) {
	sort.SliceStable(releases, func(i, j int) bool {
		return releases[i].Size > releases[j].Size
	})
}
