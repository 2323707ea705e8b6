package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/config"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/sandbox"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

// TestDefaultOptions verifies default options are set correctly.
func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if opts.Root != "." {
		t.Errorf("expected Root='.', got %q", opts.Root)
	}
	if opts.MaxDepth != config.DefaultMaxDepth {
		t.Errorf("expected MaxDepth=%d, got %d", config.DefaultMaxDepth, opts.MaxDepth)
	}
	if opts.MaxFiles != config.DefaultMaxFiles {
		t.Errorf("expected MaxFiles=%d, got %d", config.DefaultMaxFiles, opts.MaxFiles)
	}
	if opts.FingerprintCeiling != 100*1024*1024 {
		t.Errorf("expected FingerprintCeiling=100MiB, got %d", opts.FingerprintCeiling)
	}
	if opts.IncludeHidden {
		t.Error("expected IncludeHidden=false")
	}
	if opts.FollowSymlinks {
		t.Error("expected FollowSymlinks=false")
	}
}

// TestOptionsValidate verifies validation sets defaults for invalid values.
func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantRoot  string
		wantDepth int
		wantFiles int
	}{
		{
			name:      "empty options",
			opts:      Options{},
			wantRoot:  ".",
			wantDepth: config.DefaultMaxDepth,
			wantFiles: config.DefaultMaxFiles,
		},
		{
			name:      "negative limits",
			opts:      Options{MaxDepth: -1, MaxFiles: 0},
			wantRoot:  ".",
			wantDepth: config.DefaultMaxDepth,
			wantFiles: config.DefaultMaxFiles,
		},
		{
			name:      "valid options unchanged",
			opts:      Options{Root: "/tmp", MaxDepth: 3, MaxFiles: 50},
			wantRoot:  "/tmp",
			wantDepth: 3,
			wantFiles: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.opts.Validate(); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.opts.Root != tt.wantRoot {
				t.Errorf("Root: got %q, want %q", tt.opts.Root, tt.wantRoot)
			}
			if tt.opts.MaxDepth != tt.wantDepth {
				t.Errorf("MaxDepth: got %d, want %d", tt.opts.MaxDepth, tt.wantDepth)
			}
			if tt.opts.MaxFiles != tt.wantFiles {
				t.Errorf("MaxFiles: got %d, want %d", tt.opts.MaxFiles, tt.wantFiles)
			}
		})
	}
}

// createTestTree builds a small directory structure:
//
//	root/
//	  notes.txt      (11 bytes)
//	  photo.jpg      (22 bytes)
//	  docs/
//	    report.pdf   (33 bytes)
func createTestTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	if err := os.MkdirAll(filepath.Join(root, "docs"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]int{
		"notes.txt":                         11,
		"photo.jpg":                         22,
		filepath.Join("docs", "report.pdf"): 33,
	}
	for name, size := range files {
		writeBytes(t, filepath.Join(root, name), size)
	}
	return root
}

func writeBytes(t *testing.T, path string, size int) {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func scanOpts(root string) Options {
	opts := DefaultOptions()
	opts.Root = root
	opts.HashWorkers = 2
	return opts
}

func fileRecords(result *types.ScanResult) []types.ScanRecord {
	var out []types.ScanRecord
	for _, r := range result.Records {
		if !r.IsDir {
			out = append(out, r)
		}
	}
	return out
}

func TestScanBasic(t *testing.T) {
	root := createTestTree(t)

	result, err := New(scanOpts(root)).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if result.Status != types.ScanCompleted {
		t.Errorf("Status = %v, want %v (errors: %v)", result.Status, types.ScanCompleted, result.Errors)
	}
	if result.FilesScanned != 3 {
		t.Errorf("FilesScanned = %d, want 3", result.FilesScanned)
	}
	if result.DirsScanned != 2 {
		t.Errorf("DirsScanned = %d, want 2 (root and docs)", result.DirsScanned)
	}
	if result.TotalSize != 66 {
		t.Errorf("TotalSize = %d, want 66", result.TotalSize)
	}
	if result.Truncated {
		t.Error("Truncated = true, want false")
	}

	files := fileRecords(result)
	if len(files) != 3 {
		t.Fatalf("got %d file records, want 3", len(files))
	}
	for _, r := range files {
		if r.Fingerprint == "" {
			t.Errorf("%s: missing fingerprint", r.Path)
		}
		if len(r.Fingerprint) != 16 {
			t.Errorf("%s: fingerprint %q is not 16 hex digits", r.Path, r.Fingerprint)
		}
	}
	if result.Fingerprinted != 3 {
		t.Errorf("Fingerprinted = %d, want 3", result.Fingerprinted)
	}

	// Categories come from extensions.
	byName := map[string]types.ScanRecord{}
	for _, r := range files {
		byName[r.Name] = r
	}
	if got := byName["photo.jpg"].Category; got != types.CategoryImage {
		t.Errorf("photo.jpg category = %v, want %v", got, types.CategoryImage)
	}
	if got := byName["report.pdf"].Category; got != types.CategoryDocument {
		t.Errorf("report.pdf category = %v, want %v", got, types.CategoryDocument)
	}

	// Records are sorted by path.
	for i := 1; i < len(result.Records); i++ {
		if result.Records[i-1].Path > result.Records[i].Path {
			t.Errorf("records out of order: %s before %s", result.Records[i-1].Path, result.Records[i].Path)
		}
	}
}

func TestScanUnreadableSubdir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not bind for root")
	}

	root := createTestTree(t)
	locked := filepath.Join(root, "locked")
	if err := os.Mkdir(locked, 0o755); err != nil {
		t.Fatal(err)
	}
	writeBytes(t, filepath.Join(locked, "hidden.txt"), 5)
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(locked, 0o755)

	result, err := New(scanOpts(root)).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if result.Status != types.ScanCompletedWithErrors {
		t.Errorf("Status = %v, want %v", result.Status, types.ScanCompletedWithErrors)
	}

	// The three readable files still come through.
	if got := len(fileRecords(result)); got != 3 {
		t.Errorf("got %d file records, want 3", got)
	}

	var found bool
	for _, se := range result.Errors {
		if se.Kind == types.ErrKindPermission {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a permission-denied error, got %v", result.Errors)
	}
}

func TestScanHidden(t *testing.T) {
	root := createTestTree(t)
	writeBytes(t, filepath.Join(root, ".secret"), 4)
	if err := os.Mkdir(filepath.Join(root, ".config"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeBytes(t, filepath.Join(root, ".config", "inner.txt"), 4)

	opts := scanOpts(root)
	result, err := New(opts).Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := len(fileRecords(result)); got != 3 {
		t.Errorf("hidden excluded: got %d file records, want 3", got)
	}

	opts.IncludeHidden = true
	result, err = New(opts).Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := len(fileRecords(result)); got != 5 {
		t.Errorf("hidden included: got %d file records, want 5", got)
	}
}

func TestScanMaxDepth(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "d1", "d2", "d3")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}
	writeBytes(t, filepath.Join(root, "d1", "top.txt"), 4)
	writeBytes(t, filepath.Join(deep, "deep.txt"), 4)

	opts := scanOpts(root)
	opts.MaxDepth = 2

	result, err := New(opts).Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var sawD2, sawD3, sawDeepFile bool
	for _, r := range result.Records {
		switch r.Name {
		case "d2":
			sawD2 = true
		case "d3":
			sawD3 = true
		case "deep.txt":
			sawDeepFile = true
		}
	}
	if !sawD2 {
		t.Error("d2 at the depth bound should be recorded")
	}
	if sawD3 {
		t.Error("d3 beyond the depth bound should not be recorded")
	}
	if sawDeepFile {
		t.Error("deep.txt beyond the depth bound should not be recorded")
	}
}

func TestScanExcludes(t *testing.T) {
	root := createTestTree(t)
	nm := filepath.Join(root, "node_modules", "pkg")
	if err := os.MkdirAll(nm, 0o755); err != nil {
		t.Fatal(err)
	}
	writeBytes(t, filepath.Join(nm, "index.js"), 9)
	writeBytes(t, filepath.Join(root, "draft.swp"), 9)

	opts := scanOpts(root)
	opts.Exclude = []string{"node_modules", "*.swp"}

	result, err := New(opts).Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	for _, r := range result.Records {
		if r.Name == "index.js" || r.Name == "node_modules" || r.Name == "draft.swp" {
			t.Errorf("excluded entry recorded: %s", r.Path)
		}
	}
	if got := len(fileRecords(result)); got != 3 {
		t.Errorf("got %d file records, want 3", got)
	}
}

func TestScanMaxFilesTruncates(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 10; i++ {
		writeBytes(t, filepath.Join(root, string(rune('a'+i))+".txt"), 4)
	}

	opts := scanOpts(root)
	opts.MaxFiles = 3

	result, err := New(opts).Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if !result.Truncated {
		t.Error("Truncated = false, want true")
	}
	if result.FilesScanned != 3 {
		t.Errorf("FilesScanned = %d, want 3", result.FilesScanned)
	}
	if got := len(fileRecords(result)); got != 3 {
		t.Errorf("got %d file records, want 3", got)
	}
}

func TestScanSymlinkNotFollowed(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "real"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeBytes(t, filepath.Join(root, "real", "inner.txt"), 6)
	if err := os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "link")); err != nil {
		t.Fatal(err)
	}

	result, err := New(scanOpts(root)).Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var link *types.ScanRecord
	for i := range result.Records {
		if result.Records[i].Name == "link" {
			link = &result.Records[i]
		}
		if result.Records[i].Path == filepath.Join(root, "link", "inner.txt") {
			t.Error("descended into an unfollowed symlink")
		}
	}
	if link == nil {
		t.Fatal("symlink entry not recorded")
	}
	if !link.IsSymlink {
		t.Error("link record not marked as symlink")
	}
	if link.Fingerprint != "" {
		t.Error("symlink entry should not carry a fingerprint")
	}
}

func TestScanFollowSymlinks(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "scan")
	aux := filepath.Join(base, "aux")
	for _, dir := range []string{root, aux} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	writeBytes(t, filepath.Join(aux, "shared.txt"), 8)
	if err := os.Symlink(aux, filepath.Join(root, "link")); err != nil {
		t.Fatal(err)
	}

	opts := scanOpts(root)
	opts.FollowSymlinks = true

	result, err := New(opts).Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	want := filepath.Join(root, "link", "shared.txt")
	var found *types.ScanRecord
	for i := range result.Records {
		if result.Records[i].Path == want {
			found = &result.Records[i]
		}
	}
	if found == nil {
		t.Fatalf("symlinked file not recorded at logical path %s; records: %+v", want, result.Records)
	}
	if found.Fingerprint == "" {
		t.Error("followed file should be fingerprinted")
	}
}

func TestScanSymlinkLoop(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Points back at an ancestor: a guaranteed cycle.
	if err := os.Symlink(root, filepath.Join(sub, "up")); err != nil {
		t.Fatal(err)
	}

	opts := scanOpts(root)
	opts.FollowSymlinks = true

	result, err := New(opts).Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if result.Status != types.ScanCompletedWithErrors {
		t.Errorf("Status = %v, want %v", result.Status, types.ScanCompletedWithErrors)
	}
	var found bool
	for _, se := range result.Errors {
		if se.Kind == types.ErrKindSymlinkLoop {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a symlink-loop error, got %v", result.Errors)
	}
}

func TestScanCancelled(t *testing.T) {
	root := createTestTree(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := New(scanOpts(root)).Scan(ctx)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if result.Status != types.ScanCancelled {
		t.Errorf("Status = %v, want %v", result.Status, types.ScanCancelled)
	}
}

func TestScanFingerprintCeiling(t *testing.T) {
	root := t.TempDir()
	writeBytes(t, filepath.Join(root, "small.bin"), 10)
	writeBytes(t, filepath.Join(root, "large.bin"), 64)

	opts := scanOpts(root)
	opts.FingerprintCeiling = 32

	result, err := New(opts).Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if result.Status != types.ScanCompleted {
		t.Errorf("Status = %v, want completed; oversized files are not errors", result.Status)
	}
	for _, r := range fileRecords(result) {
		switch r.Name {
		case "small.bin":
			if r.Fingerprint == "" {
				t.Error("small.bin should be fingerprinted")
			}
		case "large.bin":
			if r.Fingerprint != "" {
				t.Error("large.bin exceeds the ceiling and should not be fingerprinted")
			}
		}
	}
	if result.Fingerprinted != 1 {
		t.Errorf("Fingerprinted = %d, want 1", result.Fingerprinted)
	}
}

func TestScanDuplicateContent(t *testing.T) {
	root := t.TempDir()
	data := []byte("identical payload")
	for _, name := range []string{"one.dat", "two.dat"} {
		if err := os.WriteFile(filepath.Join(root, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeBytes(t, filepath.Join(root, "other.dat"), 17)

	result, err := New(scanOpts(root)).Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	sums := map[string]string{}
	for _, r := range fileRecords(result) {
		sums[r.Name] = r.Fingerprint
	}
	if sums["one.dat"] == "" || sums["one.dat"] != sums["two.dat"] {
		t.Errorf("identical files disagree: %q vs %q", sums["one.dat"], sums["two.dat"])
	}
	if sums["one.dat"] == sums["other.dat"] {
		t.Error("distinct content shares a fingerprint")
	}
}

func TestScanProgress(t *testing.T) {
	root := createTestTree(t)

	var calls atomic.Int64
	opts := scanOpts(root)
	opts.ProgressEvery = 1
	opts.OnProgress = func(p Progress) {
		calls.Add(1)
	}

	if _, err := New(opts).Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	// One per record plus the forced start/end reports.
	if calls.Load() < 5 {
		t.Errorf("progress callback fired %d times, want >= 5", calls.Load())
	}
}

func TestScanRootMissing(t *testing.T) {
	opts := scanOpts(filepath.Join(t.TempDir(), "absent"))

	result, err := New(opts).Scan(context.Background())
	if err == nil {
		t.Fatal("Scan succeeded on a missing root")
	}
	if result.Status != types.ScanFailed {
		t.Errorf("Status = %v, want %v", result.Status, types.ScanFailed)
	}
	if len(result.Errors) == 0 || result.Errors[0].Kind != types.ErrKindNotFound {
		t.Errorf("expected not-found root error, got %v", result.Errors)
	}
}

func TestScanRootNotDirectory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "plain.txt")
	writeBytes(t, file, 4)

	if _, err := New(scanOpts(file)).Scan(context.Background()); err == nil {
		t.Fatal("Scan succeeded on a non-directory root")
	}
}

func TestScanOutsideSandbox(t *testing.T) {
	inside := t.TempDir()
	outside := t.TempDir()

	resolver, err := sandbox.New(inside)
	if err != nil {
		t.Fatal(err)
	}

	opts := scanOpts(outside)
	opts.Resolver = resolver

	result, serr := New(opts).Scan(context.Background())
	if serr == nil {
		t.Fatal("Scan succeeded outside the sandbox")
	}
	if !sandbox.IsOutOfSandbox(serr) {
		t.Errorf("error = %v, want out-of-sandbox", serr)
	}
	if result.Status != types.ScanFailed {
		t.Errorf("Status = %v, want %v", result.Status, types.ScanFailed)
	}
}

func TestRelDepth(t *testing.T) {
	tests := []struct {
		base string
		path string
		want int
	}{
		{"/a", "/a", 0},
		{"/a", "/a/b", 1},
		{"/a", "/a/b/c", 2},
		{"/a/b", "/a/b/c/d/e", 3},
	}
	for _, tt := range tests {
		if got := relDepth(tt.base, tt.path); got != tt.want {
			t.Errorf("relDepth(%q, %q) = %d, want %d", tt.base, tt.path, got, tt.want)
		}
	}
}

func TestSwapBase(t *testing.T) {
	tests := []struct {
		path        string
		realBase    string
		logicalBase string
		want        string
	}{
		{"/real/x", "/real", "/real", "/real/x"},
		{"/target", "/target", "/scan/link", "/scan/link"},
		{"/target/a/b", "/target", "/scan/link", "/scan/link/a/b"},
	}
	for _, tt := range tests {
		if got := swapBase(tt.path, tt.realBase, tt.logicalBase); got != tt.want {
			t.Errorf("swapBase(%q, %q, %q) = %q, want %q", tt.path, tt.realBase, tt.logicalBase, got, tt.want)
		}
	}
}
