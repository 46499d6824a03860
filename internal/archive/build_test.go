package archive

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readBackup(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	zr.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())

	out := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = string(content)
	}
	return out
}

func TestBuilder_Build(t *testing.T) {
	t.Parallel()

	src := fstest.MapFS{
		"settings.yaml":           {Data: []byte("bot_enabled: true\n")},
		"extracted/1/tok/a.jpg":   {Data: []byte("jpg")},
		".env":                    {Data: []byte("SECRET=1")},
		".git/config":             {Data: []byte("[core]")},
		"tools/__pycache__/x.pyc": {Data: []byte("bytecode")},
		"tools/mod.pyc":           {Data: []byte("bytecode")},
		"tools/run.py":            {Data: []byte("print()")},
	}

	for _, method := range []Method{MethodDeflate, MethodZstd, MethodStore, ""} {
		t.Run(string(method), func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			result, err := NewBuilder(nil).Build(context.Background(), src, &buf, method)
			require.NoError(t, err)

			assert.Equal(t, 3, result.Files)
			assert.Equal(t, int64(len("bot_enabled: true\n")+len("jpg")+len("print()")), result.Bytes)
			assert.Equal(t, 4, result.Skipped)

			assert.Equal(t, map[string]string{
				"settings.yaml":         "bot_enabled: true\n",
				"extracted/1/tok/a.jpg": "jpg",
				"tools/run.py":          "print()",
			}, readBackup(t, buf.Bytes()))
		})
	}
}

func TestBuilder_UnknownMethod(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	_, err := NewBuilder(nil).Build(context.Background(), fstest.MapFS{}, &buf, Method("lzma"))
	require.Error(t, err)
}

func TestBuilder_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	_, err := NewBuilder(nil).Build(ctx, fstest.MapFS{"a.txt": {Data: []byte("a")}}, &buf, MethodDeflate)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuildBackup_Directory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "users.bolt"), []byte("db"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".backup-tmp.zip"), []byte("partial"), 0o600))
	require.NoError(t, os.Symlink("/etc/passwd", filepath.Join(dir, "link")))

	var buf bytes.Buffer
	result, err := BuildBackup(context.Background(), dir, &buf, MethodDeflate, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Files)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, map[string]string{"data/users.bolt": "db"}, readBackup(t, buf.Bytes()))
}
