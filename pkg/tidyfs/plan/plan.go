// Package plan expands approved recommendations into ordered,
// validated operation plans. Recommendations arrive from an external
// analysis layer and may be arbitrarily stale, so every target is
// re-resolved and re-checked here before a single operation is
// derived. Planning is inert: the filesystem is read, never written.
package plan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/category"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/sandbox"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

// ErrInvalidTarget indicates a recommendation target that cannot be
// planned: missing, the wrong kind of entry, or bad parameters.
var ErrInvalidTarget = errors.New("invalid recommendation target")

// ErrPathConflict indicates two operations in one plan claiming the
// same destination path.
var ErrPathConflict = errors.New("conflicting destination in plan")

// ErrUnknownKind indicates a recommendation kind without an expansion
// rule.
var ErrUnknownKind = errors.New("unknown recommendation kind")

// ConflictError reports the destination more than one operation in a
// single plan would create.
type ConflictError struct {
	// Path is the contested destination.
	Path string

	// Ops describe the operations claiming it.
	Ops []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("destination %s claimed by %d operations: %s", e.Path, len(e.Ops), strings.Join(e.Ops, "; "))
}

func (e *ConflictError) Unwrap() error { return ErrPathConflict }

// target is one recommendation target after re-validation.
type target struct {
	raw       string
	canonical string
	info      fs.FileInfo
}

// Planner turns recommendations into plans.
type Planner struct {
	resolver *sandbox.Resolver
}

// New creates a Planner that validates all paths against the given
// resolver.
func New(resolver *sandbox.Resolver) *Planner {
	return &Planner{resolver: resolver}
}

// Plan expands one recommendation into an ordered operation list.
// Directory creation precedes moves into the created directories;
// deletes come last, deeper paths before shallower ones so targeted
// directory contents go before the directory itself. Sequence indices
// are assigned after ordering and are contiguous from zero.
func (p *Planner) Plan(rec types.Recommendation) (*types.Plan, error) {
	if !rec.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, rec.Kind)
	}
	if len(rec.Targets) == 0 {
		return nil, fmt.Errorf("%w: recommendation has no targets", ErrInvalidTarget)
	}

	targets, err := p.resolveTargets(rec.Targets)
	if err != nil {
		return nil, err
	}

	var ops []types.Operation
	switch rec.Kind {
	case types.RecReorganize:
		ops, err = p.expandReorganize(targets, rec.Params)
	case types.RecCategorize:
		ops, err = p.expandCategorize(targets, rec.Params)
	case types.RecDeduplicate:
		ops, err = p.expandDeduplicate(targets, rec.Params)
	case types.RecCleanup:
		ops = expandCleanup(targets)
	case types.RecArchive:
		ops, err = p.expandArchive(targets, rec.Params)
	case types.RecRetag:
		ops = expandRetag(targets, rec.Params)
	}
	if err != nil {
		return nil, err
	}

	ops = dedupCreateDirs(ops)
	orderOps(ops)
	if err := checkConflicts(ops); err != nil {
		return nil, err
	}
	for i := range ops {
		ops[i].Seq = i
	}

	return &types.Plan{
		ID:               uuid.NewString(),
		RecommendationID: rec.ID,
		Kind:             rec.Kind,
		Ops:              ops,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

// resolveTargets canonicalizes and stats every target. Raw paths that
// resolve to the same canonical path collapse into one target, keeping
// first position.
func (p *Planner) resolveTargets(raw []string) ([]target, error) {
	targets := make([]target, 0, len(raw))
	for _, r := range raw {
		canonical, err := p.resolver.Resolve(r)
		if err != nil {
			return nil, err
		}
		info, err := os.Lstat(canonical)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTarget, r, err)
		}
		targets = append(targets, target{raw: r, canonical: canonical, info: info})
	}
	return lo.UniqBy(targets, func(t target) string { return t.canonical }), nil
}

func (p *Planner) expandReorganize(targets []target, params types.RecommendationParams) ([]types.Operation, error) {
	dest, err := p.resolveDirDestination(params.Destination)
	if err != nil {
		return nil, err
	}

	ops := createDirOps(dest)
	for _, t := range targets {
		to := filepath.Join(dest, filepath.Base(t.canonical))
		if to == t.canonical {
			// Already in place.
			continue
		}
		ops = append(ops, types.Operation{Kind: types.OpMove, Source: t.canonical, Destination: to})
	}
	return ops, nil
}

func (p *Planner) expandCategorize(targets []target, params types.RecommendationParams) ([]types.Operation, error) {
	dest, err := p.resolveDirDestination(params.Destination)
	if err != nil {
		return nil, err
	}

	var ops []types.Operation
	for _, t := range targets {
		if !t.info.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: categorize target %s is not a regular file", ErrInvalidTarget, t.raw)
		}
		catDir := filepath.Join(dest, string(category.Resolve(t.canonical)))
		if err := ensureDirTarget(catDir); err != nil {
			return nil, err
		}
		to := filepath.Join(catDir, filepath.Base(t.canonical))
		if to == t.canonical {
			continue
		}
		ops = append(ops, createDirOps(catDir)...)
		ops = append(ops, types.Operation{Kind: types.OpMove, Source: t.canonical, Destination: to})
	}
	return ops, nil
}

func (p *Planner) expandDeduplicate(targets []target, params types.RecommendationParams) ([]types.Operation, error) {
	deleted := make(map[string]bool, len(targets))
	for _, t := range targets {
		deleted[t.canonical] = true
	}

	ops := make([]types.Operation, 0, len(targets))
	for _, t := range targets {
		if !t.info.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: deduplicate target %s is not a regular file", ErrInvalidTarget, t.raw)
		}

		op := types.Operation{Kind: types.OpDelete, Path: t.canonical}
		keeper, ok := params.VerifyAgainst[t.raw]
		if !ok {
			keeper, ok = params.VerifyAgainst[t.canonical]
		}
		if ok {
			resolved, err := p.resolver.Resolve(keeper)
			if err != nil {
				return nil, err
			}
			if _, err := os.Lstat(resolved); err != nil {
				return nil, fmt.Errorf("%w: verification source %s: %v", ErrInvalidTarget, keeper, err)
			}
			if deleted[resolved] {
				return nil, fmt.Errorf("%w: verification source %s is itself deleted by this plan", ErrInvalidTarget, keeper)
			}
			op.VerifySource = resolved
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func expandCleanup(targets []target) []types.Operation {
	ops := make([]types.Operation, 0, len(targets))
	for _, t := range targets {
		ops = append(ops, types.Operation{Kind: types.OpDelete, Path: t.canonical})
	}
	return ops
}

func (p *Planner) expandArchive(targets []target, params types.RecommendationParams) ([]types.Operation, error) {
	if params.ArchivePath == "" {
		return nil, fmt.Errorf("%w: archive recommendation has no archive_path", ErrInvalidTarget)
	}
	archive, err := p.resolver.Resolve(params.ArchivePath)
	if err != nil {
		return nil, err
	}
	parent := filepath.Dir(archive)
	if err := ensureDirTarget(parent); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(targets))
	for _, t := range targets {
		if !t.info.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: archive input %s is not a regular file", ErrInvalidTarget, t.raw)
		}
		paths = append(paths, t.canonical)
	}

	ops := createDirOps(parent)
	ops = append(ops, types.Operation{Kind: types.OpCompress, Paths: paths, ArchivePath: archive})
	return ops, nil
}

func expandRetag(targets []target, params types.RecommendationParams) []types.Operation {
	ops := make([]types.Operation, 0, len(targets))
	for _, t := range targets {
		ops = append(ops, types.Operation{Kind: types.OpRetag, Path: t.canonical, Tags: params.Tags})
	}
	return ops
}

// resolveDirDestination canonicalizes a destination directory that may
// not exist yet and rejects one occupied by a non-directory.
func (p *Planner) resolveDirDestination(destination string) (string, error) {
	if destination == "" {
		return "", fmt.Errorf("%w: recommendation has no destination", ErrInvalidTarget)
	}
	dest, err := p.resolver.Resolve(destination)
	if err != nil {
		return "", err
	}
	if err := ensureDirTarget(dest); err != nil {
		return "", err
	}
	return dest, nil
}

// ensureDirTarget verifies path can become a directory: absent, or
// already one.
func ensureDirTarget(path string) error {
	info, err := os.Lstat(path)
	if err == nil && !info.IsDir() {
		return fmt.Errorf("%w: %s exists and is not a directory", ErrInvalidTarget, path)
	}
	return nil
}

// createDirOps emits one createDirectory per missing ancestor of dir,
// shallowest first, so the engine creates (and rollback removes) each
// level individually. An existing dir yields nothing.
func createDirOps(dir string) []types.Operation {
	var missing []string
	for cur := dir; ; {
		if _, err := os.Lstat(cur); err == nil {
			break
		}
		missing = append(missing, cur)
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}

	ops := make([]types.Operation, 0, len(missing))
	for i := len(missing) - 1; i >= 0; i-- {
		ops = append(ops, types.Operation{Kind: types.OpCreateDir, Path: missing[i]})
	}
	return ops
}

// dedupCreateDirs collapses identical createDirectory operations,
// keeping the first occurrence. Categorize plans share ancestor
// directories across categories.
func dedupCreateDirs(ops []types.Operation) []types.Operation {
	seen := make(map[string]bool)
	out := ops[:0]
	for _, op := range ops {
		if op.Kind == types.OpCreateDir {
			if seen[op.Path] {
				continue
			}
			seen[op.Path] = true
		}
		out = append(out, op)
	}
	return out
}

// opRank fixes the cross-kind execution order: directories are created
// before anything moves into them, deletes run after everything else.
func opRank(kind types.OpKind) int {
	switch kind {
	case types.OpCreateDir:
		return 0
	case types.OpMove:
		return 1
	case types.OpCompress:
		return 2
	case types.OpRetag:
		return 3
	default:
		return 4
	}
}

func pathDepth(path string) int {
	return strings.Count(path, string(filepath.Separator))
}

// orderOps sorts operations into execution order: createDirectory
// shallow to deep, deletes deep to shallow, everything else keeping
// its expansion order within its rank.
func orderOps(ops []types.Operation) {
	sort.SliceStable(ops, func(i, j int) bool {
		ri, rj := opRank(ops[i].Kind), opRank(ops[j].Kind)
		if ri != rj {
			return ri < rj
		}
		switch ops[i].Kind {
		case types.OpCreateDir:
			di, dj := pathDepth(ops[i].Path), pathDepth(ops[j].Path)
			if di != dj {
				return di < dj
			}
			return ops[i].Path < ops[j].Path
		case types.OpDelete:
			di, dj := pathDepth(ops[i].Path), pathDepth(ops[j].Path)
			if di != dj {
				return di > dj
			}
			return ops[i].Path > ops[j].Path
		}
		return false
	})
}

// checkConflicts rejects a plan in which two operations claim the same
// destination. Two moves landing on one path is a planning error, not
// a race to lose at execution time.
func checkConflicts(ops []types.Operation) error {
	claims := make(map[string][]string)
	for i := range ops {
		op := &ops[i]
		switch op.Kind {
		case types.OpCreateDir:
			claims[op.Path] = append(claims[op.Path], op.String())
		case types.OpMove:
			claims[op.Destination] = append(claims[op.Destination], op.String())
		case types.OpCompress:
			claims[op.ArchivePath] = append(claims[op.ArchivePath], op.String())
		}
	}

	var contested []string
	for path, claimants := range claims {
		if len(claimants) > 1 {
			contested = append(contested, path)
		}
	}
	if len(contested) == 0 {
		return nil
	}
	sort.Strings(contested)
	return &ConflictError{Path: contested[0], Ops: claims[contested[0]]}
}
