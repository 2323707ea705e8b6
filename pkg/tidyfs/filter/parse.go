package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
	"github.com/k1LoW/duration"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

// ErrInvalidTerm indicates a query term that could not be understood.
var ErrInvalidTerm = errors.New("invalid filter term")

// ErrUnknownField indicates a query term with an unrecognized field name.
var ErrUnknownField = errors.New("unknown filter field")

// Parse builds a Filter from a query string of whitespace-separated
// terms. Most terms take the form field:value; size and age take a
// comparison operator instead:
//
//	category:image ext:.png name:*draft* path:**/vendor/** exclude:*.bak
//	tag:work is:file size>10MB size<=1GB age>30d age<1y
//	sort:-size limit:20
//
// Terms combine with AND. Repeating category, ext, name, or path ORs
// the values; repeated tag terms must all be carried. Sizes accept
// binary-unit suffixes ("10MB", "512K"), ages accept compact duration
// forms ("30d", "12h", "1mo"). An empty query matches everything.
func Parse(query string) (*Filter, error) {
	f := New()
	if err := ParseInto(f, query); err != nil {
		return nil, err
	}
	return f, nil
}

// ParseInto folds query terms into an existing filter, so callers can
// seed defaults (a sort order, a limit) that explicit terms override.
func ParseInto(f *Filter, query string) error {
	for _, term := range strings.Fields(query) {
		if err := applyTerm(f, term); err != nil {
			return err
		}
	}
	return nil
}

// applyTerm parses one term and folds it into the filter.
func applyTerm(f *Filter, term string) error {
	key, op, value, err := splitTerm(term)
	if err != nil {
		return err
	}

	if key == "size" || key == "age" {
		return applyComparison(f, key, op, value)
	}
	if op != ":" {
		return fmt.Errorf("%w: %s does not support operator %q", ErrInvalidTerm, key, op)
	}

	switch key {
	case "category":
		c := types.Category(strings.ToLower(value))
		if !c.Valid() {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidTerm, value)
		}
		f.Categories = append(f.Categories, c)
	case "ext":
		f.Extensions = append(f.Extensions, normalizeExt(value))
	case "name":
		if _, err := glob.Compile(value); err != nil {
			return fmt.Errorf("filter name pattern %q: %w", value, err)
		}
		f.Names = append(f.Names, value)
	case "path":
		if _, err := glob.Compile(value, '/'); err != nil {
			return fmt.Errorf("filter path pattern %q: %w", value, err)
		}
		f.Paths = append(f.Paths, value)
	case "exclude":
		if _, err := glob.Compile(value, '/'); err != nil {
			return fmt.Errorf("filter exclude pattern %q: %w", value, err)
		}
		f.Exclude = append(f.Exclude, value)
	case "tag":
		f.Tags = append(f.Tags, value)
	case "is":
		k, err := ParseKind(value)
		if err != nil {
			return err
		}
		f.Kind = k
	case "sort":
		desc := strings.HasPrefix(value, "-")
		field, err := ParseSortField(strings.TrimPrefix(value, "-"))
		if err != nil {
			return err
		}
		f.SortBy = field
		f.SortDescending = desc
	case "limit":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: limit must be a non-negative integer, got %q", ErrInvalidTerm, value)
		}
		f.Limit = n
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, key)
	}
	return nil
}

// applyComparison folds a size or age bound into the filter.
func applyComparison(f *Filter, key, op, value string) error {
	if op == ":" {
		return fmt.Errorf("%w: %s requires a comparison operator (> >= < <=)", ErrInvalidTerm, key)
	}

	switch key {
	case "size":
		n, err := types.ParseSize(value)
		if err != nil {
			return fmt.Errorf("filter size: %w", err)
		}
		switch op {
		case ">":
			f.MinSize = n + 1
		case ">=":
			f.MinSize = n
		case "<":
			if n == 0 {
				return fmt.Errorf("%w: size bound must be positive", ErrInvalidTerm)
			}
			f.MaxSize = n
		case "<=":
			f.MaxSize = n + 1
		}
	case "age":
		if strings.HasPrefix(value, "-") {
			return fmt.Errorf("%w: age cannot be negative", ErrInvalidTerm)
		}
		d, err := duration.Parse(value)
		if err != nil {
			return fmt.Errorf("filter age: %w", err)
		}
		switch op {
		case ">", ">=":
			f.OlderThan = d
		case "<", "<=":
			f.NewerThan = d
		}
	}
	return nil
}

// splitTerm breaks a term into field, operator, and value. The
// operator is one of ":", ">", ">=", "<", "<=".
func splitTerm(term string) (key, op, value string, err error) {
	i := strings.IndexAny(term, ":<>")
	if i <= 0 {
		return "", "", "", fmt.Errorf("%w: %q", ErrInvalidTerm, term)
	}

	key = strings.ToLower(term[:i])
	rest := term[i:]
	if strings.HasPrefix(rest, ">=") || strings.HasPrefix(rest, "<=") {
		op, value = rest[:2], rest[2:]
	} else {
		op, value = rest[:1], rest[1:]
	}

	if value == "" {
		return "", "", "", fmt.Errorf("%w: %q has no value", ErrInvalidTerm, term)
	}
	return key, op, value, nil
}
