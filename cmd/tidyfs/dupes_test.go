package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/dupes"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

func TestWriteDedupeRecommendation(t *testing.T) {
	now := time.Now()
	groups := []dupes.Group{
		{
			Fingerprint: "aaaa111122223333",
			Size:        4096,
			Records: []types.ScanRecord{
				{Path: "/data/photos/original.jpg", Size: 4096, ModTime: now.Add(-48 * time.Hour)},
				{Path: "/data/photos/copy.jpg", Size: 4096, ModTime: now.Add(-24 * time.Hour)},
				{Path: "/data/backup/copy2.jpg", Size: 4096, ModTime: now},
			},
		},
		{
			Fingerprint: "bbbb444455556666",
			Size:        1024,
			Records: []types.ScanRecord{
				{Path: "/data/docs/notes.txt", Size: 1024, ModTime: now.Add(-time.Hour)},
				{Path: "/data/docs/notes (1).txt", Size: 1024, ModTime: now},
			},
		},
	}

	path := filepath.Join(t.TempDir(), "dedupe.json")
	if err := writeDedupeRecommendation(path, groups); err != nil {
		t.Fatalf("writeDedupeRecommendation() returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read recommendation file: %v", err)
	}

	var rec types.Recommendation
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("recommendation file is not valid JSON: %v", err)
	}

	if rec.ID == "" {
		t.Error("recommendation has no ID")
	}
	if rec.Kind != types.RecDeduplicate {
		t.Errorf("Kind = %q, want %q", rec.Kind, types.RecDeduplicate)
	}

	// The keeper of each group must not be a target.
	wantTargets := []string{
		"/data/photos/copy.jpg",
		"/data/backup/copy2.jpg",
		"/data/docs/notes (1).txt",
	}
	if len(rec.Targets) != len(wantTargets) {
		t.Fatalf("Targets = %v, want %v", rec.Targets, wantTargets)
	}
	for i, target := range rec.Targets {
		if target != wantTargets[i] {
			t.Errorf("Targets[%d] = %q, want %q", i, target, wantTargets[i])
		}
	}

	// Every target verifies against its group's keeper.
	wantVerify := map[string]string{
		"/data/photos/copy.jpg":    "/data/photos/original.jpg",
		"/data/backup/copy2.jpg":   "/data/photos/original.jpg",
		"/data/docs/notes (1).txt": "/data/docs/notes.txt",
	}
	for target, keeper := range wantVerify {
		if got := rec.Params.VerifyAgainst[target]; got != keeper {
			t.Errorf("VerifyAgainst[%q] = %q, want %q", target, got, keeper)
		}
	}

	// The round trip must survive the structural checks plan applies.
	if _, err := readRecommendation(path); err != nil {
		t.Errorf("readRecommendation() rejected emitted file: %v", err)
	}
}

func TestWriteDedupeRecommendationSingleGroup(t *testing.T) {
	groups := []dupes.Group{
		{
			Fingerprint: "cccc777788889999",
			Size:        10,
			Records: []types.ScanRecord{
				{Path: "/data/a", Size: 10},
				{Path: "/data/b", Size: 10},
			},
		},
	}

	path := filepath.Join(t.TempDir(), "one.json")
	if err := writeDedupeRecommendation(path, groups); err != nil {
		t.Fatalf("writeDedupeRecommendation() returned error: %v", err)
	}

	rec, err := readRecommendation(path)
	if err != nil {
		t.Fatalf("readRecommendation() returned error: %v", err)
	}
	if len(rec.Targets) != 1 || rec.Targets[0] != "/data/b" {
		t.Errorf("Targets = %v, want [/data/b]", rec.Targets)
	}
	if rec.Params.VerifyAgainst["/data/b"] != "/data/a" {
		t.Errorf("VerifyAgainst = %v, want /data/b verified against /data/a", rec.Params.VerifyAgainst)
	}
}
