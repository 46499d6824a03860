// Package safepath turns untrusted archive entry names into file names that
// are safe to create inside a sandbox directory.
package safepath

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/meigma/unzipbot/core"
)

// maxNameBytes is the longest name most filesystems accept for one path segment.
const maxNameBytes = 255

// maxCandidates bounds the collision search in CreateUnique.
const maxCandidates = 100000

// ValidatePath reports whether an archive entry name could be used as a
// relative path without escaping its root. Names failing this check are still
// extracted, but only under their sanitized base name.
func ValidatePath(path string) error {
	if containsNull(path) {
		return core.ErrPathTraversal
	}
	if isAbsolute(path) {
		return core.ErrPathTraversal
	}
	if containsTraversal(path) {
		return core.ErrPathTraversal
	}
	return nil
}

// BaseName returns the final segment of an entry name, treating both slash
// kinds as separators. Directory-style names ending in a separator yield "".
func BaseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	// Drop a leftover drive prefix such as "C:".
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Sanitize keeps letters, digits, '.', '_', '-' and space. When nothing usable
// remains it returns "file_<n>", so the result is never empty.
func Sanitize(name string, n int) string {
	if clean := Clean(name); clean != "" {
		return clean
	}
	return "file_" + strconv.Itoa(n)
}

// Clean is Sanitize without the fallback: it returns "" when no usable
// characters remain or when only dots are left.
func Clean(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isAllowed(r) {
			b.WriteRune(r)
		}
	}
	clean := strings.TrimSpace(b.String())
	if strings.Trim(clean, ".") == "" {
		return ""
	}
	return truncate(clean)
}

// SafeName applies BaseName then Sanitize.
func SafeName(entryName string, n int) string {
	return Sanitize(BaseName(entryName), n)
}

// Candidate returns the i-th collision candidate for name: name itself for
// i == 0, otherwise "base_i.ext".
func Candidate(name string, i int) string {
	if i == 0 {
		return name
	}
	suffix := "_" + strconv.Itoa(i)
	base, ext := SplitExt(name)
	if over := len(base) + len(suffix) + len(ext) - maxNameBytes; over > 0 && over < len(base) {
		cut := len(base) - over
		for cut > 0 && !utf8.RuneStart(base[cut]) {
			cut--
		}
		base = base[:cut]
	}
	return base + suffix + ext
}

// SplitExt splits name into base and extension. Leading dots belong to the
// base, so ".profile" has no extension.
func SplitExt(name string) (base, ext string) {
	trimmed := strings.TrimLeft(name, ".")
	i := strings.LastIndexByte(trimmed, '.')
	if i <= 0 {
		return name, ""
	}
	cut := len(name) - len(trimmed) + i
	return name[:cut], name[cut:]
}

// CreateUnique creates a new file in dir named after name, appending _1, _2,
// ... before the extension until an unused name is found. The file is opened
// with O_EXCL so an existing file is never overwritten.
func CreateUnique(dir, name string, perm fs.FileMode) (*os.File, string, error) {
	for i := 0; i < maxCandidates; i++ {
		path := filepath.Join(dir, Candidate(name, i))
		if !Within(path, dir) {
			return nil, "", fmt.Errorf("%w: %s", core.ErrPathTraversal, name)
		}
		//nolint:gosec // G304: path is confined to dir by Within
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if err == nil {
			return f, path, nil
		}
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		return nil, "", err
	}
	return nil, "", fmt.Errorf("no free name for %q after %d attempts", name, maxCandidates)
}

// Within reports whether path lies strictly inside dir, lexically.
func Within(path, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	if rel == "." || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isAllowed(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.', '_', '-', ' ':
		return true
	}
	return false
}

// truncate shortens name to maxNameBytes while keeping its extension and
// valid UTF-8.
func truncate(name string) string {
	if len(name) <= maxNameBytes {
		return name
	}
	base, ext := SplitExt(name)
	if len(ext) >= maxNameBytes/2 {
		base, ext = name, ""
	}
	limit := maxNameBytes - len(ext)
	for limit > 0 && !utf8.RuneStart(base[limit]) {
		limit--
	}
	return base[:limit] + ext
}

func containsNull(path string) bool {
	return strings.IndexByte(path, 0) >= 0
}

func containsTraversal(path string) bool {
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return true
		}
	}
	return false
}

func isAbsolute(path string) bool {
	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, "\\") {
		return true
	}
	// Drive letters ("C:", "c:\") are absolute or drive-relative on Windows.
	return len(path) >= 2 && path[1] == ':' && isASCIILetter(path[0])
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
