package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

func TestReadRecommendation(t *testing.T) {
	tempDir := t.TempDir()

	writeRec := func(t *testing.T, name, content string) string {
		t.Helper()
		path := filepath.Join(tempDir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
		return path
	}

	tests := []struct {
		name     string
		path     string
		wantKind types.RecommendationKind
		wantErr  bool
	}{
		{
			name: "valid cleanup recommendation",
			path: writeRec(t, "cleanup.json",
				`{"kind": "cleanup", "targets": ["/data/old.log"]}`),
			wantKind: types.RecCleanup,
		},
		{
			name: "valid reorganize with params",
			path: writeRec(t, "reorganize.json",
				`{"id": "r-1", "kind": "reorganize", "targets": ["/data/a.mp4"], "params": {"destination": "/data/video"}}`),
			wantKind: types.RecReorganize,
		},
		{
			name:    "missing file",
			path:    filepath.Join(tempDir, "absent.json"),
			wantErr: true,
		},
		{
			name:    "malformed json",
			path:    writeRec(t, "broken.json", `{"kind": "cleanup",`),
			wantErr: true,
		},
		{
			name: "unknown kind",
			path: writeRec(t, "unknown.json",
				`{"kind": "shred", "targets": ["/data/a"]}`),
			wantErr: true,
		},
		{
			name:    "no targets",
			path:    writeRec(t, "empty.json", `{"kind": "cleanup", "targets": []}`),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := readRecommendation(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("readRecommendation() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if rec.Kind != tt.wantKind {
				t.Errorf("readRecommendation() Kind = %q, want %q", rec.Kind, tt.wantKind)
			}
			if len(rec.Targets) == 0 {
				t.Error("readRecommendation() returned no targets")
			}
		})
	}
}
