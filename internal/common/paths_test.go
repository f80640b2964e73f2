package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{".", ""},
		{"/foo", "foo"},
		{"foo/", "foo"},
		{"/foo/bar/", "foo/bar"},
		{"foo//bar", "foo/bar"},
		{"foo/./bar", "foo/bar"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePath(tt.in), "NormalizePath(%q)", tt.in)
	}
}

func TestSplitPath(t *testing.T) {
	t.Parallel()

	assert.Nil(t, SplitPath("/"))
	assert.Equal(t, []string{"foo"}, SplitPath("/foo"))
	assert.Equal(t, []string{"foo", "bar", "baz"}, SplitPath("foo/bar/baz/"))
}

func TestParentPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", ParentPath(""))
	assert.Equal(t, "", ParentPath("foo"))
	assert.Equal(t, "foo", ParentPath("foo/bar"))
	assert.Equal(t, "foo/bar", ParentPath("/foo/bar/baz"))
}

func TestBaseName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", BaseName("/"))
	assert.Equal(t, "foo", BaseName("foo"))
	assert.Equal(t, "baz", BaseName("foo/bar/baz"))
}
