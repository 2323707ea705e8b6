package category

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want types.Category
	}{
		{"main.go", types.CategoryCode},
		{"script.PY", types.CategoryCode},
		{"notes.md", types.CategoryDocument},
		{"report.pdf", types.CategoryDocument},
		{"photo.JPG", types.CategoryImage},
		{"logo.svg", types.CategoryImage},
		{"clip.mp4", types.CategoryVideo},
		{"song.flac", types.CategoryAudio},
		{"backup.tar.gz", types.CategoryArchive},
		{"bundle.zip", types.CategoryArchive},
		{"config.yaml", types.CategoryData},
		{"dump.sql", types.CategoryData},
		{"module.o", types.CategoryBuildArtifact},
		{"cache.pyc", types.CategoryBuildArtifact},
		{"draft.tmp", types.CategoryTemporary},
		{"session.swp", types.CategoryTemporary},
		{"notes.txt~", types.CategoryTemporary},
		{"main.py~", types.CategoryTemporary},
		{"README", types.CategoryOther},
		{"archive.unknown", types.CategoryOther},
		{"", types.CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.name); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	// A PNG header with no extension to give Classify nothing to work with.
	png := filepath.Join(dir, "headshot")
	pngMagic := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	if err := os.WriteFile(png, pngMagic, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Detect(png)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if got != types.CategoryImage {
		t.Errorf("Detect(png) = %v, want %v", got, types.CategoryImage)
	}

	text := filepath.Join(dir, "readme")
	if err := os.WriteFile(text, []byte("plain prose, no markup"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = Detect(text)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if got != types.CategoryDocument {
		t.Errorf("Detect(text) = %v, want %v", got, types.CategoryDocument)
	}
}

func TestDetectMissingFile(t *testing.T) {
	t.Parallel()

	got, err := Detect(filepath.Join(t.TempDir(), "absent"))
	if err == nil {
		t.Fatal("Detect() on missing file succeeded, want error")
	}
	if got != types.CategoryOther {
		t.Errorf("Detect() on error = %v, want %v", got, types.CategoryOther)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	// Extension wins without touching the file.
	if got := Resolve(filepath.Join(dir, "nonexistent.go")); got != types.CategoryCode {
		t.Errorf("Resolve(.go) = %v, want %v", got, types.CategoryCode)
	}

	// No extension: content sniffing takes over.
	jpeg := filepath.Join(dir, "vacation")
	jpegMagic := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F', 0}
	if err := os.WriteFile(jpeg, jpegMagic, 0o644); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(jpeg); got != types.CategoryImage {
		t.Errorf("Resolve(jpeg) = %v, want %v", got, types.CategoryImage)
	}

	// Unreadable path degrades to other.
	if got := Resolve(filepath.Join(dir, "missing")); got != types.CategoryOther {
		t.Errorf("Resolve(missing) = %v, want %v", got, types.CategoryOther)
	}
}
