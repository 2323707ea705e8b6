package engine_test

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/engine"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/journal"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/pathlock"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/retain"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/sandbox"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

// fixture wires an engine to a throwaway sandbox, journal, and
// retention area. All test paths build on root, the canonical form of
// the sandbox directory.
type fixture struct {
	root  string
	eng   *engine.Engine
	jrnl  *journal.Journal
	ret   *retain.Store
	locks *pathlock.Manager
}

func newFixture(t *testing.T, mutate ...func(*engine.Deps)) *fixture {
	t.Helper()

	resolver, err := sandbox.New(t.TempDir())
	require.NoError(t, err)

	jrnl, err := journal.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { jrnl.Close() })

	ret, err := retain.Open(t.TempDir())
	require.NoError(t, err)

	deps := engine.Deps{
		Resolver:      resolver,
		Journal:       jrnl,
		Locks:         pathlock.NewManager(),
		Retain:        ret,
		RetainCeiling: types.MiB,
		RetainKeep:    30 * 24 * time.Hour,
	}
	for _, m := range mutate {
		m(&deps)
	}

	return &fixture{
		root:  resolver.Roots()[0],
		eng:   engine.New(deps),
		jrnl:  jrnl,
		ret:   deps.Retain,
		locks: deps.Locks,
	}
}

func (fx *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(fx.root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (fx *fixture) path(name string) string {
	return filepath.Join(fx.root, name)
}

func makePlan(kind types.RecommendationKind, ops ...types.Operation) *types.Plan {
	for i := range ops {
		ops[i].Seq = i
	}
	return &types.Plan{
		ID:        "plan-" + string(kind),
		Kind:      kind,
		Ops:       ops,
		CreatedAt: time.Now().UTC(),
	}
}

func outcomes(rec *types.ExecutionRecord) []types.OpOutcome {
	out := make([]types.OpOutcome, len(rec.Ops))
	for i := range rec.Ops {
		out[i] = rec.Ops[i].Outcome
	}
	return out
}

func TestExecuteMove(t *testing.T) {
	fx := newFixture(t)
	src := fx.write(t, "report.pdf", "contents")
	dst := fx.path("filed.pdf")

	p := makePlan(types.RecReorganize,
		types.Operation{Kind: types.OpMove, Source: src, Destination: dst})

	rec, err := fx.eng.Execute(context.Background(), p, engine.Options{})
	require.NoError(t, err)

	assert.Equal(t, types.ExecCompleted, rec.Status)
	assert.Equal(t, 1, rec.Counters.Succeeded)
	assert.Zero(t, rec.Counters.Failed)
	assert.True(t, rec.RollbackAvailable)
	assert.NoFileExists(t, src)
	assert.FileExists(t, dst)

	stored, err := fx.jrnl.GetExecution(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ExecCompleted, stored.Status)

	entries, err := fx.jrnl.RollbackEntries(rec.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Inverse)
	assert.Equal(t, types.OpMove, entries[0].Inverse.Kind)
	assert.Equal(t, dst, entries[0].Inverse.Source)
	assert.Equal(t, src, entries[0].Inverse.Destination)
}

func TestExecuteEmptyPlan(t *testing.T) {
	fx := newFixture(t)

	rec, err := fx.eng.Execute(context.Background(), makePlan(types.RecReorganize), engine.Options{})
	require.NoError(t, err)

	assert.Equal(t, types.ExecCompleted, rec.Status)
	assert.Zero(t, rec.Counters.Attempted)
	assert.False(t, rec.RollbackAvailable)
}

func TestDryRunLeavesTreeUntouched(t *testing.T) {
	fx := newFixture(t)
	src := fx.write(t, "a.txt", "payload")
	sub := fx.path("sub")

	p := makePlan(types.RecReorganize,
		types.Operation{Kind: types.OpCreateDir, Path: sub},
		types.Operation{Kind: types.OpMove, Source: src, Destination: filepath.Join(sub, "a.txt")})

	rec, err := fx.eng.Execute(context.Background(), p, engine.Options{DryRun: true})
	require.NoError(t, err)

	assert.True(t, rec.DryRun)
	assert.Equal(t, types.ExecCompleted, rec.Status)
	assert.Equal(t, 2, rec.Counters.Succeeded)
	assert.False(t, rec.RollbackAvailable)

	assert.FileExists(t, src)
	assert.NoDirExists(t, sub)

	// Dry-runs are journaled like any other run, with no rollback
	// entries.
	stored, err := fx.jrnl.GetExecution(rec.ID)
	require.NoError(t, err)
	assert.True(t, stored.DryRun)

	entries, err := fx.jrnl.RollbackEntries(rec.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDryRunSeesEarlierSimulatedOps(t *testing.T) {
	fx := newFixture(t)
	src := fx.write(t, "a.txt", "payload")
	sub := fx.path("nested")

	// The move's destination parent exists only in the simulation.
	p := makePlan(types.RecReorganize,
		types.Operation{Kind: types.OpCreateDir, Path: sub},
		types.Operation{Kind: types.OpMove, Source: src, Destination: filepath.Join(sub, "a.txt")})

	rec, err := fx.eng.Execute(context.Background(), p, engine.Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, types.ExecCompleted, rec.Status)
	assert.Equal(t,
		[]types.OpOutcome{types.OutcomeSucceeded, types.OutcomeSucceeded}, outcomes(rec))
}

func TestDryRunMatchesCommitOutcomes(t *testing.T) {
	fx := newFixture(t)
	a := fx.write(t, "a.txt", "move me")
	c := fx.write(t, "c.txt", "blocked")
	fx.write(t, "occupied.txt", "already here")
	junk := fx.write(t, "junk.txt", "droppable")

	p := makePlan(types.RecCleanup,
		types.Operation{Kind: types.OpMove, Source: a, Destination: fx.path("renamed.txt")},
		types.Operation{Kind: types.OpMove, Source: c, Destination: fx.path("occupied.txt")},
		types.Operation{Kind: types.OpDelete, Path: fx.path("missing.txt")},
		types.Operation{Kind: types.OpDelete, Path: junk})

	dry, err := fx.eng.Execute(context.Background(), p, engine.Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, types.ExecFailed, dry.Status)
	assert.FileExists(t, a)
	assert.FileExists(t, junk)

	commit, err := fx.eng.Execute(context.Background(), p, engine.Options{})
	require.NoError(t, err)
	assert.Equal(t, types.ExecFailed, commit.Status)

	assert.Equal(t, outcomes(dry), outcomes(commit))
	assert.Equal(t, dry.Counters.Succeeded, commit.Counters.Succeeded)
	assert.Equal(t, dry.Counters.Failed, commit.Counters.Failed)

	assert.FileExists(t, fx.path("renamed.txt"))
	assert.NoFileExists(t, a)
	assert.FileExists(t, c)
	assert.Equal(t, "already here", readFile(t, fx.path("occupied.txt")))
	assert.NoFileExists(t, junk)
}

func TestExecutePartialFailureContinues(t *testing.T) {
	fx := newFixture(t)
	a := fx.write(t, "a.txt", "first")
	b := fx.write(t, "b.txt", "second")
	cFile := fx.write(t, "c.txt", "third")
	fx.write(t, "taken.txt", "occupied")

	p := makePlan(types.RecReorganize,
		types.Operation{Kind: types.OpMove, Source: a, Destination: fx.path("a.moved")},
		types.Operation{Kind: types.OpMove, Source: b, Destination: fx.path("taken.txt")},
		types.Operation{Kind: types.OpMove, Source: cFile, Destination: fx.path("c.moved")})

	rec, err := fx.eng.Execute(context.Background(), p, engine.Options{})
	require.NoError(t, err)

	assert.Equal(t, types.ExecFailed, rec.Status)
	assert.Equal(t, 3, rec.Counters.Attempted)
	assert.Equal(t, 2, rec.Counters.Succeeded)
	assert.Equal(t, 1, rec.Counters.Failed)
	assert.Zero(t, rec.Counters.Skipped)

	// The failed move left its source where it was; the ops around it
	// still ran.
	assert.FileExists(t, b)
	assert.Equal(t, "occupied", readFile(t, fx.path("taken.txt")))
	assert.FileExists(t, fx.path("a.moved"))
	assert.FileExists(t, fx.path("c.moved"))
	assert.Contains(t, rec.Ops[1].Message, "already exists")
	assert.True(t, rec.RollbackAvailable)
}

func TestExecutePreCancelledSkipsAll(t *testing.T) {
	fx := newFixture(t)
	src := fx.write(t, "a.txt", "payload")

	p := makePlan(types.RecReorganize,
		types.Operation{Kind: types.OpMove, Source: src, Destination: fx.path("b.txt")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err := fx.eng.Execute(ctx, p, engine.Options{})
	require.NoError(t, err)

	assert.Equal(t, types.ExecCancelled, rec.Status)
	assert.Equal(t, 1, rec.Counters.Skipped)
	assert.Zero(t, rec.Counters.Attempted)
	assert.FileExists(t, src)
	assert.NoFileExists(t, fx.path("b.txt"))
}

func TestExecuteCancelledWaitingForLocks(t *testing.T) {
	fx := newFixture(t)
	src := fx.write(t, "a.txt", "payload")
	dst := fx.path("b.txt")

	p := makePlan(types.RecReorganize,
		types.Operation{Kind: types.OpMove, Source: src, Destination: dst})

	release, err := fx.locks.Acquire(context.Background(), src)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *types.ExecutionRecord, 1)
	go func() {
		rec, _ := fx.eng.Execute(ctx, p, engine.Options{})
		done <- rec
	}()

	// Let the execution queue behind the held lock before cancelling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	rec := <-done
	require.NotNil(t, rec)
	assert.Equal(t, types.ExecCancelled, rec.Status)
	assert.Equal(t, 1, rec.Counters.Skipped)
	assert.FileExists(t, src)
	assert.NoFileExists(t, dst)
}

func TestExecuteDeleteRetains(t *testing.T) {
	fx := newFixture(t)
	content := "precious bytes"
	target := fx.write(t, "old.log", content)

	p := makePlan(types.RecCleanup,
		types.Operation{Kind: types.OpDelete, Path: target})

	rec, err := fx.eng.Execute(context.Background(), p, engine.Options{})
	require.NoError(t, err)

	assert.Equal(t, types.ExecCompleted, rec.Status)
	assert.Equal(t, int64(len(content)), rec.Counters.BytesFreed)
	assert.NoFileExists(t, target)

	// The payload sits in the retention area, not gone.
	kept, err := fx.ret.List()
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, target, kept[0].OriginalPath)
	assert.Equal(t, content, readFile(t, kept[0].RetainedPath))
}

func TestExecuteDeleteOverCeilingIsPermanent(t *testing.T) {
	fx := newFixture(t, func(d *engine.Deps) { d.RetainCeiling = 4 })
	target := fx.write(t, "big.bin", "way past four bytes")

	p := makePlan(types.RecCleanup,
		types.Operation{Kind: types.OpDelete, Path: target})

	rec, err := fx.eng.Execute(context.Background(), p, engine.Options{})
	require.NoError(t, err)

	assert.Equal(t, types.ExecCompleted, rec.Status)
	assert.NoFileExists(t, target)

	kept, err := fx.ret.List()
	require.NoError(t, err)
	assert.Empty(t, kept)

	entries, err := fx.jrnl.RollbackEntries(rec.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Unrecoverable)
	assert.Contains(t, entries[0].Reason, "exceeds retention ceiling")
}

func TestExecuteDeleteVerified(t *testing.T) {
	fx := newFixture(t)
	keeper := fx.write(t, "keeper.txt", "same content")
	dupe := fx.write(t, "dupe.txt", "same content")

	p := makePlan(types.RecDeduplicate,
		types.Operation{Kind: types.OpDelete, Path: dupe, VerifySource: keeper})

	rec, err := fx.eng.Execute(context.Background(), p, engine.Options{})
	require.NoError(t, err)

	assert.Equal(t, types.ExecCompleted, rec.Status)
	assert.NoFileExists(t, dupe)
	assert.FileExists(t, keeper)
}

func TestExecuteDeleteVerifyMismatch(t *testing.T) {
	fx := newFixture(t)
	keeper := fx.write(t, "keeper.txt", "the content drifted")
	dupe := fx.write(t, "dupe.txt", "original content")

	p := makePlan(types.RecDeduplicate,
		types.Operation{Kind: types.OpDelete, Path: dupe, VerifySource: keeper})

	rec, err := fx.eng.Execute(context.Background(), p, engine.Options{})
	require.NoError(t, err)

	assert.Equal(t, types.ExecFailed, rec.Status)
	assert.Equal(t, types.OutcomeFailed, rec.Ops[0].Outcome)
	assert.Contains(t, rec.Ops[0].Message, "no longer matches")
	assert.FileExists(t, dupe)
}

func TestExecuteCreateDirAlreadyPresent(t *testing.T) {
	fx := newFixture(t)
	sub := fx.path("sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	p := makePlan(types.RecReorganize,
		types.Operation{Kind: types.OpCreateDir, Path: sub})

	rec, err := fx.eng.Execute(context.Background(), p, engine.Options{})
	require.NoError(t, err)

	// Nothing was created, so there is nothing to undo.
	assert.Equal(t, types.ExecCompleted, rec.Status)
	assert.False(t, rec.RollbackAvailable)
	assert.DirExists(t, sub)
}

func TestExecuteCompress(t *testing.T) {
	fx := newFixture(t)
	content1 := strings.Repeat("alpha ", 16_000)
	content2 := strings.Repeat("beta ", 16_000)
	in1 := fx.write(t, "notes1.txt", content1)
	in2 := fx.write(t, "notes2.txt", content2)
	archive := fx.path("archives/bundle.tar.zst")

	p := makePlan(types.RecArchive,
		types.Operation{Kind: types.OpCreateDir, Path: fx.path("archives")},
		types.Operation{Kind: types.OpCompress, Paths: []string{in1, in2}, ArchivePath: archive})

	rec, err := fx.eng.Execute(context.Background(), p, engine.Options{})
	require.NoError(t, err)

	assert.Equal(t, types.ExecCompleted, rec.Status)
	assert.Greater(t, rec.Counters.BytesFreed, int64(0))
	assert.FileExists(t, archive)
	assert.NoFileExists(t, in1)
	assert.NoFileExists(t, in2)

	// Inputs moved to retention, pending the keep window.
	kept, err := fx.ret.List()
	require.NoError(t, err)
	assert.Len(t, kept, 2)

	got := readTarZst(t, archive)
	require.Len(t, got, 2)
	assert.Equal(t, content1, got[strings.TrimPrefix(in1, "/")])
	assert.Equal(t, content2, got[strings.TrimPrefix(in2, "/")])
}

func TestExecuteCompressRejectsDirectoryInput(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, os.Mkdir(fx.path("dir"), 0o755))

	p := makePlan(types.RecArchive,
		types.Operation{Kind: types.OpCompress, Paths: []string{fx.path("dir")}, ArchivePath: fx.path("out.tar.zst")})

	rec, err := fx.eng.Execute(context.Background(), p, engine.Options{})
	require.NoError(t, err)

	assert.Equal(t, types.ExecFailed, rec.Status)
	assert.Contains(t, rec.Ops[0].Message, "not a regular file")
	assert.NoFileExists(t, fx.path("out.tar.zst"))
}

func TestExecuteRetag(t *testing.T) {
	fx := newFixture(t)
	doc := fx.write(t, "paper.pdf", "pdf bytes")
	require.NoError(t, fx.jrnl.SetTags(doc, []string{"inbox"}))

	p := makePlan(types.RecRetag,
		types.Operation{Kind: types.OpRetag, Path: doc, Tags: []string{"research", "2026"}})

	rec, err := fx.eng.Execute(context.Background(), p, engine.Options{})
	require.NoError(t, err)

	assert.Equal(t, types.ExecCompleted, rec.Status)
	tags, err := fx.jrnl.Tags(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"research", "2026"}, tags)

	entries, err := fx.jrnl.RollbackEntries(rec.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Inverse)
	assert.Equal(t, []string{"inbox"}, entries[0].Inverse.Tags)
}

func TestExecuteRejectsOutOfSandbox(t *testing.T) {
	fx := newFixture(t)
	outside := filepath.Join(t.TempDir(), "outside.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	p := makePlan(types.RecCleanup,
		types.Operation{Kind: types.OpDelete, Path: outside})

	rec, err := fx.eng.Execute(context.Background(), p, engine.Options{})
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, sandbox.ErrOutOfSandbox)
	assert.FileExists(t, outside)

	// Nothing was journaled for the rejected plan.
	all, err := fx.jrnl.ListExecutions()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestExecuteRejectsMalformedOp(t *testing.T) {
	fx := newFixture(t)

	p := makePlan(types.RecReorganize,
		types.Operation{Kind: types.OpMove, Source: fx.path("a.txt")})

	rec, err := fx.eng.Execute(context.Background(), p, engine.Options{})
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, types.ErrMalformedOp)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// readTarZst reads an archive back into a name-to-content map.
func readTarZst(t *testing.T, path string) map[string]string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	zr, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer zr.Close()

	out := make(map[string]string)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[hdr.Name] = string(data)
	}
	return out
}
