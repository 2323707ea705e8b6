// Package filter narrows, sorts, and limits scan results. Criteria come
// either from a query string parsed by Parse or from functional options,
// and apply to scan records by category, extension, name and path
// patterns, size, age, tags, and entry kind.
package filter

import (
	"errors"
	"fmt"
	"strings"
)

// SortField specifies the record field to sort results by.
type SortField int

const (
	// SortPath sorts records by path alphabetically.
	SortPath SortField = iota
	// SortSize sorts records by size in bytes.
	SortSize
	// SortAge sorts records by modification time, oldest first.
	SortAge
	// SortName sorts records by base name alphabetically.
	SortName
	// SortCategory sorts records by category name.
	SortCategory
)

// Sort field string constants.
const (
	sortFieldPath     = "path"
	sortFieldSize     = "size"
	sortFieldAge      = "age"
	sortFieldName     = "name"
	sortFieldCategory = "category"
)

// String returns the string representation of the sort field.
func (s SortField) String() string {
	switch s {
	case SortSize:
		return sortFieldSize
	case SortAge:
		return sortFieldAge
	case SortName:
		return sortFieldName
	case SortCategory:
		return sortFieldCategory
	default:
		return sortFieldPath
	}
}

// ErrInvalidSortField indicates that the sort field string could not be parsed.
var ErrInvalidSortField = errors.New("invalid sort field")

// ParseSortField parses a string into a SortField. Valid values are
// "path", "size", "age", "name", and "category" (case-insensitive).
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(s) {
	case sortFieldPath:
		return SortPath, nil
	case sortFieldSize:
		return SortSize, nil
	case sortFieldAge:
		return SortAge, nil
	case sortFieldName:
		return SortName, nil
	case sortFieldCategory:
		return SortCategory, nil
	default:
		return SortPath, fmt.Errorf("%w: %q", ErrInvalidSortField, s)
	}
}

// Kind selects which entry kinds a filter applies to.
type Kind int

const (
	// KindAny matches every record.
	KindAny Kind = iota
	// KindFile matches regular files.
	KindFile
	// KindDir matches directories.
	KindDir
	// KindSymlink matches symbolic links.
	KindSymlink
)

// Kind string constants.
const (
	kindAny     = "any"
	kindFile    = "file"
	kindDir     = "dir"
	kindSymlink = "symlink"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return kindFile
	case KindDir:
		return kindDir
	case KindSymlink:
		return kindSymlink
	default:
		return kindAny
	}
}

// ErrInvalidKind indicates that the entry kind string could not be parsed.
var ErrInvalidKind = errors.New("invalid entry kind")

// ParseKind parses a string into a Kind. Valid values are "any", "file",
// "dir", and "symlink" (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case kindAny:
		return KindAny, nil
	case kindFile:
		return KindFile, nil
	case kindDir:
		return KindDir, nil
	case kindSymlink:
		return KindSymlink, nil
	default:
		return KindAny, fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}
