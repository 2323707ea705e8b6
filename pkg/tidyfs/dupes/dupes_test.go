package dupes

import (
	"testing"
	"time"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

func rec(path, sum string, size int64, age time.Duration) types.ScanRecord {
	return types.ScanRecord{
		Path:        path,
		Name:        path,
		Size:        size,
		ModTime:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Add(-age),
		Fingerprint: sum,
	}
}

func TestBuildGroupsByFingerprint(t *testing.T) {
	t.Parallel()

	records := []types.ScanRecord{
		rec("/data/a", "aaaa", 100, 3*time.Hour),
		rec("/data/b", "aaaa", 100, 1*time.Hour),
		rec("/data/c", "aaaa", 100, 2*time.Hour),
		rec("/data/d", "bbbb", 50, 0),
		rec("/data/e", "bbbb", 50, time.Minute),
		rec("/data/unique", "cccc", 10, 0),
	}

	groups := Build(records).Groups()
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}

	// 2*100 wasted beats 1*50, so the aaaa group leads.
	if groups[0].Fingerprint != "aaaa" {
		t.Errorf("first group = %s, want aaaa", groups[0].Fingerprint)
	}
	if groups[0].Wasted() != 200 {
		t.Errorf("Wasted = %d, want 200", groups[0].Wasted())
	}
	if groups[1].Wasted() != 50 {
		t.Errorf("second Wasted = %d, want 50", groups[1].Wasted())
	}

	// Oldest copy leads the group.
	if got := groups[0].Keeper().Path; got != "/data/a" {
		t.Errorf("Keeper = %s, want /data/a (oldest)", got)
	}
	if got := len(groups[0].Extras()); got != 2 {
		t.Errorf("Extras = %d, want 2", got)
	}
}

func TestBuildSkipsUnfingerprinted(t *testing.T) {
	t.Parallel()

	records := []types.ScanRecord{
		rec("/data/a", "", 100, 0),
		rec("/data/b", "", 100, 0),
		{Path: "/data/dir", IsDir: true, Fingerprint: "aaaa"},
		{Path: "/data/dir2", IsDir: true, Fingerprint: "aaaa"},
	}

	if groups := Build(records).Groups(); len(groups) != 0 {
		t.Errorf("got %d groups, want 0: empty fingerprints and directories never group", len(groups))
	}
}

func TestBuildTieBreaksByPath(t *testing.T) {
	t.Parallel()

	same := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []types.ScanRecord{
		{Path: "/data/z", Size: 10, ModTime: same, Fingerprint: "ffff"},
		{Path: "/data/a", Size: 10, ModTime: same, Fingerprint: "ffff"},
	}

	groups := Build(records).Groups()
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if got := groups[0].Keeper().Path; got != "/data/a" {
		t.Errorf("Keeper = %s, want /data/a (path tiebreak)", got)
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	records := []types.ScanRecord{
		rec("/data/a", "aaaa", 100, time.Hour),
		rec("/data/b", "aaaa", 100, 0),
		rec("/data/lonely", "cccc", 10, 0),
	}

	ix := Build(records)

	g, ok := ix.Lookup("aaaa")
	if !ok {
		t.Fatal("Lookup(aaaa) missed")
	}
	if len(g.Records) != 2 {
		t.Errorf("group has %d records, want 2", len(g.Records))
	}

	// Singletons are dropped, so their fingerprint never resolves.
	if _, ok := ix.Lookup("cccc"); ok {
		t.Error("Lookup(cccc) hit a singleton")
	}
	if _, ok := ix.Lookup("missing"); ok {
		t.Error("Lookup(missing) hit")
	}
}

func TestTotalWasted(t *testing.T) {
	t.Parallel()

	records := []types.ScanRecord{
		rec("/a", "aaaa", 100, time.Hour),
		rec("/b", "aaaa", 100, 0),
		rec("/c", "bbbb", 30, time.Hour),
		rec("/d", "bbbb", 30, 0),
		rec("/e", "bbbb", 30, time.Minute),
	}

	if got := Build(records).TotalWasted(); got != 160 {
		t.Errorf("TotalWasted = %d, want 160", got)
	}
}

func TestRecommendations(t *testing.T) {
	t.Parallel()

	records := []types.ScanRecord{
		rec("/data/old", "aaaa", 100, 2*time.Hour),
		rec("/data/mid", "aaaa", 100, 1*time.Hour),
		rec("/data/new", "aaaa", 100, 0),
	}

	recs := Build(records).Recommendations()
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}

	r := recs[0]
	if r.Kind != types.RecDeduplicate {
		t.Errorf("Kind = %v, want %v", r.Kind, types.RecDeduplicate)
	}
	if r.ID == "" {
		t.Error("missing recommendation ID")
	}
	if len(r.Targets) != 2 {
		t.Fatalf("got %d targets, want 2", len(r.Targets))
	}
	for _, target := range r.Targets {
		if target == "/data/old" {
			t.Error("keeper listed as a target")
		}
		if got := r.Params.VerifyAgainst[target]; got != "/data/old" {
			t.Errorf("VerifyAgainst[%s] = %s, want /data/old", target, got)
		}
	}
}
