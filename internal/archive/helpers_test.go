package archive

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

type testEntry struct {
	name   string
	data   string
	dir    bool
	mode   fs.FileMode
	method uint16
}

// writeZip builds an archive from entries in a fresh temp directory.
func writeZip(t *testing.T, entries ...testEntry) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())
	for _, e := range entries {
		h := &zip.FileHeader{Name: e.name, Method: e.method}
		switch {
		case e.dir:
			h.SetMode(fs.ModeDir | 0o755)
		case e.mode != 0:
			h.SetMode(e.mode)
		}
		w, err := zw.CreateHeader(h)
		require.NoError(t, err)
		if !e.dir {
			_, err = w.Write([]byte(e.data))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	return path
}

func files(names ...string) []testEntry {
	entries := make([]testEntry, 0, len(names))
	for _, n := range names {
		entries = append(entries, testEntry{name: n, data: "content of " + n, method: zip.Deflate})
	}
	return entries
}

// dirNames lists the entry names of dir in directory order.
func dirNames(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
