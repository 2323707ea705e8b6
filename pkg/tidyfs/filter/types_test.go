package filter

import (
	"errors"
	"testing"
)

func TestSortFieldString(t *testing.T) {
	tests := []struct {
		name  string
		field SortField
		want  string
	}{
		{name: "path", field: SortPath, want: "path"},
		{name: "size", field: SortSize, want: "size"},
		{name: "age", field: SortAge, want: "age"},
		{name: "name", field: SortName, want: "name"},
		{name: "category", field: SortCategory, want: "category"},
		{name: "unknown", field: SortField(99), want: "path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.field.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseSortField(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    SortField
		wantErr bool
	}{
		{name: "path", input: "path", want: SortPath},
		{name: "size", input: "size", want: SortSize},
		{name: "size uppercase", input: "SIZE", want: SortSize},
		{name: "age mixed case", input: "Age", want: SortAge},
		{name: "name", input: "name", want: SortName},
		{name: "category", input: "category", want: SortCategory},
		{name: "unknown", input: "depth", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSortField(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSortField) {
					t.Fatalf("err = %v, want ErrInvalidSortField", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSortField(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseSortField(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{kind: KindAny, want: "any"},
		{kind: KindFile, want: "file"},
		{kind: KindDir, want: "dir"},
		{kind: KindSymlink, want: "symlink"},
		{kind: Kind(99), want: "any"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(tt.kind), got, tt.want)
		}
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Kind
		wantErr bool
	}{
		{name: "any", input: "any", want: KindAny},
		{name: "file", input: "file", want: KindFile},
		{name: "dir", input: "dir", want: KindDir},
		{name: "symlink uppercase", input: "SYMLINK", want: KindSymlink},
		{name: "unknown", input: "socket", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKind(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidKind) {
					t.Fatalf("err = %v, want ErrInvalidKind", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseKind(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseKind(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
