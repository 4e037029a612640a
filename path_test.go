package compoundfiles

import (
	"reflect"
	"testing"
)

func TestNameChainFromPath(t *testing.T) {
	type args struct {
		s string
	}
	tests := []struct {
		name string
		args args
		want []string
	}{
		{
			name: "empty",
			args: args{s: ""},
			want: []string{},
		},
		{
			name: "root",
			args: args{s: "/"},
			want: []string{},
		},
		{
			name: "valid abs",
			args: args{s: "/foo/bar/baz/"},
			want: []string{"foo", "bar", "baz"},
		},
		{
			name: "valid rel",
			args: args{s: "foo/bar/baz"},
			want: []string{"foo", "bar", "baz"},
		},
		{
			name: "valid up",
			args: args{s: "foo/bar/../baz"},
			want: []string{"foo", "baz"},
		},
		{
			name: "invalid up",
			args: args{s: "foo/../../baz"},
			want: []string{},
		},
		{
			name: "double slash",
			args: args{s: "foo//bar"},
			want: []string{"foo", "bar"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NameChainFromPath(tt.args.s)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NameChainFromPath() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPathFromNameChain(t *testing.T) {
	type args struct {
		names []string
	}
	tests := []struct {
		name string
		args args
		want string
	}{
		{
			name: "empty",
			args: args{names: []string{}},
			want: "/",
		},
		{
			name: "valid",
			args: args{names: []string{"foo", "bar", "baz"}},
			want: "/foo/bar/baz",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PathFromNameChain(tt.args.names); got != tt.want {
				t.Errorf("PathFromNameChain() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompareNames(t *testing.T) {
	tests := []struct {
		name  string
		left  string
		right string
		want  Ordering
	}{
		{name: "equal", left: "abc", right: "abc", want: OrderEqual},
		{name: "case insensitive", left: "abc", right: "ABC", want: OrderEqual},
		{name: "shorter first", left: "zz", right: "aaa", want: OrderLess},
		{name: "longer last", left: "aaa", right: "zz", want: OrderGreater},
		{name: "same length lexicographic", left: "aa", right: "bb", want: OrderLess},
		{name: "uppercased comparison", left: "a", right: "B", want: OrderLess},
		{name: "non-ascii fold", left: "ä", right: "Ä", want: OrderEqual},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompareNames(tt.left, tt.right); got != tt.want {
				t.Errorf("CompareNames(%q, %q) = %v, want %v", tt.left, tt.right, got, tt.want)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	if err := ValidateName("ok name"); err != nil {
		t.Errorf("ValidateName() unexpected error: %v", err)
	}
	for _, bad := range []string{"", "a/b", "a\\b", "a:b", "a!b",
		"0123456789012345678901234567890123"} {
		if err := ValidateName(bad); err == nil {
			t.Errorf("ValidateName(%q) expected error", bad)
		}
	}
}
