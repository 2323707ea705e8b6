// Package dupes groups scan records by content fingerprint. Building
// the index is a pure function over records; nothing here touches the
// filesystem. Fingerprints are a fast heuristic, so consumers that
// delete must verify bytes against the kept copy before acting.
package dupes

import (
	"sort"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

// Group is a set of records sharing one content fingerprint.
type Group struct {
	// Fingerprint all members share.
	Fingerprint string `json:"fingerprint"`

	// Size of a single copy in bytes.
	Size int64 `json:"size"`

	// Records holds the copies, oldest first.
	Records []types.ScanRecord `json:"records"`
}

// Keeper is the copy retained by a deduplication: the oldest one.
func (g Group) Keeper() types.ScanRecord {
	return g.Records[0]
}

// Extras are the copies a deduplication would remove.
func (g Group) Extras() []types.ScanRecord {
	return g.Records[1:]
}

// Wasted is the number of bytes reclaimable by keeping one copy.
func (g Group) Wasted() int64 {
	return int64(len(g.Records)-1) * g.Size
}

// Index holds the duplicate groups of one scan and answers
// what-shares-this-content queries without rescanning.
type Index struct {
	groups []Group
	bySum  map[string]int
}

// Build groups records by fingerprint and indexes groups of two or
// more copies. Records without a fingerprint never group. Groups come
// back ordered by descending wasted bytes; members within a group by
// ascending mod time with path as tiebreak, so the oldest copy leads.
func Build(records []types.ScanRecord) *Index {
	withSum := lo.Filter(records, func(r types.ScanRecord, _ int) bool {
		return !r.IsDir && r.Fingerprint != ""
	})

	bySum := lo.GroupBy(withSum, func(r types.ScanRecord) string {
		return r.Fingerprint
	})

	groups := make([]Group, 0, len(bySum))
	for sum, members := range bySum {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			if !members[i].ModTime.Equal(members[j].ModTime) {
				return members[i].ModTime.Before(members[j].ModTime)
			}
			return members[i].Path < members[j].Path
		})
		groups = append(groups, Group{
			Fingerprint: sum,
			Size:        members[0].Size,
			Records:     members,
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Wasted() != groups[j].Wasted() {
			return groups[i].Wasted() > groups[j].Wasted()
		}
		return groups[i].Fingerprint < groups[j].Fingerprint
	})

	ix := &Index{
		groups: groups,
		bySum:  make(map[string]int, len(groups)),
	}
	for i, g := range groups {
		ix.bySum[g.Fingerprint] = i
	}
	return ix
}

// Groups returns the duplicate groups, largest waste first.
func (ix *Index) Groups() []Group {
	return ix.groups
}

// Lookup returns the group sharing the given fingerprint, if any.
func (ix *Index) Lookup(fingerprint string) (Group, bool) {
	i, ok := ix.bySum[fingerprint]
	if !ok {
		return Group{}, false
	}
	return ix.groups[i], true
}

// TotalWasted sums reclaimable bytes across all groups.
func (ix *Index) TotalWasted() int64 {
	return lo.SumBy(ix.groups, func(g Group) int64 { return g.Wasted() })
}

// Recommendations turns the duplicate groups into deduplicate
// recommendations, one per group. Targets are the extra copies; each
// target carries the keeper's path as its verification source so the
// executor compares bytes before deleting.
func (ix *Index) Recommendations() []types.Recommendation {
	recs := make([]types.Recommendation, 0, len(ix.groups))
	for _, g := range ix.groups {
		keeper := g.Keeper()
		verify := make(map[string]string, len(g.Records)-1)
		targets := make([]string, 0, len(g.Records)-1)
		for _, extra := range g.Extras() {
			targets = append(targets, extra.Path)
			verify[extra.Path] = keeper.Path
		}
		recs = append(recs, types.Recommendation{
			ID:      uuid.NewString(),
			Kind:    types.RecDeduplicate,
			Targets: targets,
			Params: types.RecommendationParams{
				VerifyAgainst: verify,
			},
		})
	}
	return recs
}
