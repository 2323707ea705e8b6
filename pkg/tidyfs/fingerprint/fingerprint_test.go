package fingerprint

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestFileDeterministic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "stable content")
	ctx := context.Background()

	first, err := File(ctx, path, 0)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	second, err := File(ctx, path, 0)
	if err != nil {
		t.Fatalf("File() second error = %v", err)
	}

	if first != second {
		t.Errorf("fingerprint not deterministic: %s != %s", first, second)
	}
	if len(first) != 16 {
		t.Errorf("fingerprint length = %d, want 16 hex digits", len(first))
	}
}

func TestIdenticalContentSameFingerprint(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := writeFile(t, dir, "a.bin", "same bytes here")
	b := writeFile(t, dir, "b.bin", "same bytes here")
	c := writeFile(t, dir, "c.bin", "different bytes!")
	ctx := context.Background()

	sumA, err := File(ctx, a, 0)
	if err != nil {
		t.Fatalf("File(a) error = %v", err)
	}
	sumB, err := File(ctx, b, 0)
	if err != nil {
		t.Fatalf("File(b) error = %v", err)
	}
	sumC, err := File(ctx, c, 0)
	if err != nil {
		t.Fatalf("File(c) error = %v", err)
	}

	if sumA != sumB {
		t.Errorf("identical content produced different fingerprints: %s vs %s", sumA, sumB)
	}
	if sumA == sumC {
		t.Errorf("distinct content produced identical fingerprints: %s", sumA)
	}
}

func TestEmptyFileKnownDigest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "empty", "")

	sum, err := File(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}

	// xxHash64 of empty input with seed 0.
	if sum != "ef46db3751d8e999" {
		t.Errorf("empty file fingerprint = %s, want ef46db3751d8e999", sum)
	}
}

func TestFileSpansMultipleChunks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	big := strings.Repeat("0123456789abcdef", 3*ChunkSize/16)
	a := writeFile(t, dir, "big_a", big)
	b := writeFile(t, dir, "big_b", big)
	ctx := context.Background()

	sumA, err := File(ctx, a, 0)
	if err != nil {
		t.Fatalf("File(a) error = %v", err)
	}
	sumB, err := File(ctx, b, 0)
	if err != nil {
		t.Fatalf("File(b) error = %v", err)
	}
	if sumA != sumB {
		t.Errorf("multi-chunk fingerprints differ: %s vs %s", sumA, sumB)
	}
}

func TestCeilingSkipsWithoutReading(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "large.bin", strings.Repeat("x", 4096))

	_, err := File(context.Background(), path, 1024)
	if !IsTooLarge(err) {
		t.Errorf("File() error = %v, want ErrTooLarge", err)
	}

	// At the ceiling exactly, the file is still hashed.
	if _, err := File(context.Background(), path, 4096); err != nil {
		t.Errorf("File() at ceiling error = %v", err)
	}
}

func TestFileMissing(t *testing.T) {
	t.Parallel()

	_, err := File(context.Background(), filepath.Join(t.TempDir(), "absent"), 0)
	if !os.IsNotExist(err) {
		t.Errorf("File() error = %v, want not-exist", err)
	}
}

func TestReaderMatchesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := "reader and file must agree"
	path := writeFile(t, dir, "r.txt", content)
	ctx := context.Background()

	fromFile, err := File(ctx, path, 0)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	fromReader, err := Reader(ctx, strings.NewReader(content))
	if err != nil {
		t.Fatalf("Reader() error = %v", err)
	}

	if fromFile != fromReader {
		t.Errorf("File() = %s, Reader() = %s", fromFile, fromReader)
	}
}

func TestCancelledContext(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "c.txt", "content")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := File(ctx, path, 0); err == nil {
		t.Error("File() with cancelled context succeeded, want error")
	}
}

func TestEqual(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := writeFile(t, dir, "a", "twin content")
	b := writeFile(t, dir, "b", "twin content")
	c := writeFile(t, dir, "c", "twin CONTENT")
	d := writeFile(t, dir, "d", "longer than the others")
	ctx := context.Background()

	eq, err := Equal(ctx, a, b)
	if err != nil {
		t.Fatalf("Equal(a,b) error = %v", err)
	}
	if !eq {
		t.Error("Equal(a,b) = false, want true")
	}

	eq, err = Equal(ctx, a, c)
	if err != nil {
		t.Fatalf("Equal(a,c) error = %v", err)
	}
	if eq {
		t.Error("Equal(a,c) = true, want false")
	}

	// Size mismatch short-circuits.
	eq, err = Equal(ctx, a, d)
	if err != nil {
		t.Fatalf("Equal(a,d) error = %v", err)
	}
	if eq {
		t.Error("Equal(a,d) = true, want false")
	}
}
