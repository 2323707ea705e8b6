// Package sandbox confines every filesystem path tidyfs touches to a
// configured set of allowed roots. It is the single chokepoint: every
// path entering the scanner, planner, or engine passes through Resolve
// exactly once before use.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutOfSandbox indicates a path resolves outside every allowed root.
var ErrOutOfSandbox = errors.New("path escapes sandbox")

// ErrInvalidPath indicates a path that cannot be canonicalized.
var ErrInvalidPath = errors.New("invalid path")

// PathError wraps a resolution failure with the offending path.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// Resolver validates paths against a set of allowed roots. Roots are
// canonicalized once at construction; all comparisons use canonical
// paths so symlinks cannot smuggle a path out of the sandbox.
type Resolver struct {
	roots []string
}

// New builds a Resolver for the given allowed roots. Every root must
// exist and canonicalize cleanly.
func New(roots ...string) (*Resolver, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: no sandbox roots configured", ErrInvalidPath)
	}

	canonical := make([]string, 0, len(roots))
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, &PathError{Path: root, Err: fmt.Errorf("%w: %v", ErrInvalidPath, err)}
		}
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, &PathError{Path: root, Err: fmt.Errorf("%w: %v", ErrInvalidPath, err)}
		}
		canonical = append(canonical, resolved)
	}

	return &Resolver{roots: canonical}, nil
}

// Roots returns the canonical allowed roots.
func (r *Resolver) Roots() []string {
	out := make([]string, len(r.roots))
	copy(out, r.roots)
	return out
}

// Resolve canonicalizes raw (resolving .. and symlink components; for
// paths that do not exist yet, the closest existing ancestor is resolved
// and the remainder rejoined) and verifies the result lies under an
// allowed root. The prefix check runs on the canonical path, not the raw
// one, so neither dot-dot traversal nor symlinks can escape.
func (r *Resolver) Resolve(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", &PathError{Path: raw, Err: fmt.Errorf("%w: empty path", ErrInvalidPath)}
	}
	if strings.ContainsRune(raw, 0) {
		return "", &PathError{Path: raw, Err: fmt.Errorf("%w: NUL byte in path", ErrInvalidPath)}
	}

	abs, err := filepath.Abs(filepath.Clean(raw))
	if err != nil {
		return "", &PathError{Path: raw, Err: fmt.Errorf("%w: %v", ErrInvalidPath, err)}
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			resolved = resolveClosestAncestor(abs)
		} else {
			return "", &PathError{Path: raw, Err: fmt.Errorf("%w: %v", ErrInvalidPath, err)}
		}
	}

	if !r.Within(resolved) {
		return "", &PathError{Path: raw, Err: ErrOutOfSandbox}
	}

	return resolved, nil
}

// Within reports whether an already-canonical path lies under one of the
// allowed roots. Callers holding paths produced by Resolve (or walked
// from a resolved root without following symlinks) may use this as the
// cheap containment check.
func (r *Resolver) Within(canonical string) bool {
	for _, root := range r.roots {
		if canonical == root || strings.HasPrefix(canonical+string(filepath.Separator), root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// resolveClosestAncestor walks up from path to the closest existing
// ancestor, resolves it, then rejoins the remaining components.
func resolveClosestAncestor(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		if os.IsNotExist(err) {
			resolved = resolveClosestAncestor(dir)
		} else {
			return filepath.Clean(path)
		}
	}
	return filepath.Join(resolved, base)
}

// IsOutOfSandbox reports whether err is a sandbox escape.
func IsOutOfSandbox(err error) bool {
	return errors.Is(err, ErrOutOfSandbox)
}

// IsInvalidPath reports whether err is an unresolvable path.
func IsInvalidPath(err error) bool {
	return errors.Is(err, ErrInvalidPath)
}
