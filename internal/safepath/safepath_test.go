package safepath

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/unzipbot/core"
)

func TestValidatePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "simple file", path: "foo.txt"},
		{name: "nested path", path: "foo/bar/baz.txt"},
		{name: "double dot not as component", path: "foo..bar"},
		{name: "parent traversal at start", path: "../foo", wantErr: core.ErrPathTraversal},
		{name: "parent traversal in middle", path: "foo/../bar", wantErr: core.ErrPathTraversal},
		{name: "absolute path unix", path: "/etc/passwd", wantErr: core.ErrPathTraversal},
		{name: "null byte", path: "foo\x00bar", wantErr: core.ErrPathTraversal},
		{name: "backslash traversal", path: "..\\foo", wantErr: core.ErrPathTraversal},
		{name: "drive letter", path: "C:\\Windows\\win.ini", wantErr: core.ErrPathTraversal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidatePath(tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr, "ValidatePath(%q)", tt.path)
			} else {
				assert.NoError(t, err, "ValidatePath(%q)", tt.path)
			}
		})
	}
}

func TestSafeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		entry string
		n     int
		want  string
	}{
		{name: "plain", entry: "photo.jpg", want: "photo.jpg"},
		{name: "nested", entry: "a/b/c/clip.mp4", want: "clip.mp4"},
		{name: "traversal", entry: "../../etc/passwd", want: "passwd"},
		{name: "absolute", entry: "/etc/shadow", want: "shadow"},
		{name: "backslashes", entry: "..\\..\\evil.exe", want: "evil.exe"},
		{name: "drive prefix", entry: "C:evil.bat", want: "evil.bat"},
		{name: "punctuation stripped", entry: "my$file(1).txt", want: "myfile1.txt"},
		{name: "spaces kept", entry: "holiday pics 2024.png", want: "holiday pics 2024.png"},
		{name: "unicode letters kept", entry: "фото.jpg", want: "фото.jpg"},
		{name: "empty after sanitizing", entry: "$$$", n: 3, want: "file_3"},
		{name: "dot dot", entry: "foo/..", n: 0, want: "file_0"},
		{name: "single dot", entry: ".", n: 7, want: "file_7"},
		{name: "directory style", entry: "dir/", n: 1, want: "file_1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SafeName(tt.entry, tt.n))
		})
	}
}

func TestSanitize_LongName(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 400) + ".mp4"
	got := Sanitize(long, 0)
	assert.LessOrEqual(t, len(got), maxNameBytes)
	assert.True(t, strings.HasSuffix(got, ".mp4"))

	cand := Candidate(got, 12)
	assert.LessOrEqual(t, len(cand), maxNameBytes)
	assert.True(t, strings.HasSuffix(cand, "_12.mp4"))
}

func TestSplitExt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, base, ext string
	}{
		{"photo.jpg", "photo", ".jpg"},
		{"archive.tar.gz", "archive.tar", ".gz"},
		{".profile", ".profile", ""},
		{"noext", "noext", ""},
		{"trailing.", "trailing", "."},
	}
	for _, tt := range tests {
		base, ext := SplitExt(tt.in)
		assert.Equal(t, tt.base, base, tt.in)
		assert.Equal(t, tt.ext, ext, tt.in)
	}
}

func TestCandidate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a.txt", Candidate("a.txt", 0))
	assert.Equal(t, "a_1.txt", Candidate("a.txt", 1))
	assert.Equal(t, "a_2.txt", Candidate("a.txt", 2))
	assert.Equal(t, "README_1", Candidate("README", 1))
}

func TestCreateUnique(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	var paths []string
	for i := 0; i < 3; i++ {
		f, path, err := CreateUnique(dir, "clip.mp4", 0o600)
		require.NoError(t, err)
		_, err = f.WriteString("payload")
		require.NoError(t, err)
		require.NoError(t, f.Close())
		paths = append(paths, path)
	}

	assert.Equal(t, []string{
		filepath.Join(dir, "clip.mp4"),
		filepath.Join(dir, "clip_1.mp4"),
		filepath.Join(dir, "clip_2.mp4"),
	}, paths)

	for _, p := range paths {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestCreateUnique_RejectsEscape(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, _, err := CreateUnique(dir, "..", 0o600)
	assert.ErrorIs(t, err, core.ErrPathTraversal)
}

func TestWithin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		dir  string
		want bool
	}{
		{"child", "/data/x/file.txt", "/data/x", true},
		{"nested child", "/data/x/y/file.txt", "/data/x", true},
		{"equal", "/data/x", "/data/x", false},
		{"parent", "/data", "/data/x", false},
		{"sibling prefix", "/data/xy/file.txt", "/data/x", false},
		{"dotdot", "/data/x/../y", "/data/x", false},
		{"dotdot prefixed name", "/data/x/..hidden", "/data/x", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Within(tt.path, tt.dir))
		})
	}
}

func TestClean(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "12345", Clean("12345"))
	assert.Equal(t, "user-42", Clean("user/-42"))
	assert.Empty(t, Clean(""))
	assert.Empty(t, Clean("../.."))
	assert.Empty(t, Clean("   "))
}
