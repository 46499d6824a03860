package unzipbot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type zipFile struct {
	name string
	data string
}

func makeZip(t *testing.T, files ...zipFile) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "upload.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, zf := range files {
		w, err := zw.Create(zf.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(zf.data))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func numbered(n int, pattern string) []zipFile {
	files := make([]zipFile, n)
	for i := range files {
		files[i] = zipFile{name: fmt.Sprintf(pattern, i), data: "x"}
	}
	return files
}

type fixedTokens struct{ token string }

func (f fixedTokens) Next() string { return f.token }

func newPipeline(t *testing.T, opts ...Option) (*Pipeline, string) {
	t.Helper()
	root := t.TempDir()
	p, err := NewPipeline(root, opts...)
	require.NoError(t, err)
	return p, root
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNewPipeline(t *testing.T) {
	t.Parallel()

	t.Run("empty root", func(t *testing.T) {
		t.Parallel()
		_, err := NewPipeline("")
		require.Error(t, err)
	})

	t.Run("negative limits", func(t *testing.T) {
		t.Parallel()
		_, err := NewPipeline(t.TempDir(), WithLimits(SafetyLimits{MaxFiles: -1}))
		require.Error(t, err)
	})

	t.Run("nil token source", func(t *testing.T) {
		t.Parallel()
		_, err := NewPipeline(t.TempDir(), WithTokenSource(nil))
		require.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		p, err := NewPipeline(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, DefaultLimits(), p.Limits())
		assert.True(t, filepath.IsAbs(p.DestRoot()))
	})
}

func TestExtractArchive_MediaScenario(t *testing.T) {
	t.Parallel()

	p, root := newPipeline(t, WithTokenSource(fixedTokens{"tok"}))
	src := makeZip(t, numbered(10, "photos/img_%02d.jpg")...)

	res := p.ExtractArchive(context.Background(), ExtractionRequest{SourcePath: src, OwnerID: "42"})

	require.True(t, res.Success, res.ErrorMessage)
	assert.Nil(t, res.Err)
	assert.Equal(t, StageDone, res.Stage)
	assert.Equal(t, filepath.Join(root, "42", "tok"), res.ExtractDir)
	assert.Equal(t, 10, res.TotalFileCount)
	assert.Len(t, res.ExtractedFiles, 10)
	assert.Len(t, res.ImageFiles, 10)
	assert.Empty(t, res.VideoFiles)
	assert.True(t, strings.HasPrefix(res.ArchiveDigest, "sha256:"))
	for _, path := range res.ExtractedFiles {
		assert.Equal(t, res.ExtractDir, filepath.Dir(path))
	}
}

func TestExtractArchive_ResultInvariants(t *testing.T) {
	t.Parallel()

	p, _ := newPipeline(t)
	src := makeZip(t,
		zipFile{"a.mp4", "v"},
		zipFile{"b.PNG", "i"},
		zipFile{"c.txt", "t"},
		zipFile{"d.MKV", "v"},
		zipFile{"e.mp3", "a"},
	)

	res := p.ExtractArchive(context.Background(), ExtractionRequest{SourcePath: src, OwnerID: "7"})
	require.True(t, res.Success)

	assert.Equal(t, len(res.ExtractedFiles), res.TotalFileCount)
	assert.Equal(t, []string{"a.mp4", "d.MKV"}, baseNames(res.VideoFiles))
	assert.Equal(t, []string{"b.PNG"}, baseNames(res.ImageFiles))

	seen := map[string]bool{}
	for _, v := range res.VideoFiles {
		seen[v] = true
	}
	for _, i := range res.ImageFiles {
		assert.False(t, seen[i], "buckets must be disjoint")
	}
	for _, path := range append(res.VideoFiles, res.ImageFiles...) {
		assert.Contains(t, res.ExtractedFiles, path)
	}
}

func TestExtractArchive_LimitFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		limits SafetyLimits
		files  []zipFile
		kind   ErrorKind
		detail string
	}{
		{
			name:   "too many files",
			limits: DefaultLimits(),
			files:  numbered(101, "f%03d.txt"),
			kind:   KindTooManyFiles,
			detail: "Too many files in archive (max: 100)",
		},
		{
			name:   "file too large",
			limits: SafetyLimits{MaxFiles: 10, MaxTotalSize: 1 << 20, MaxFileSize: 4},
			files:  []zipFile{{"ok.txt", "abc"}, {"big.bin", "0123456789"}},
			kind:   KindFileTooLarge,
			detail: "big.bin",
		},
		{
			name:   "archive too large",
			limits: SafetyLimits{MaxFiles: 10, MaxTotalSize: 15, MaxFileSize: 10},
			files:  []zipFile{{"a.bin", "0123456789"}, {"b.bin", "0123456789"}},
			kind:   KindArchiveTooLarge,
			detail: "Total uncompressed size too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, root := newPipeline(t, WithLimits(tt.limits))
			src := makeZip(t, tt.files...)

			res := p.ExtractArchive(context.Background(), ExtractionRequest{SourcePath: src, OwnerID: "1"})

			require.False(t, res.Success)
			require.NotNil(t, res.Err)
			assert.Equal(t, tt.kind, res.Err.Kind)
			assert.ErrorIs(t, res.Err, ErrExtractLimits)
			assert.Contains(t, res.ErrorMessage, tt.detail)
			assert.Equal(t, StageValidating, res.Stage)
			assert.Empty(t, res.ExtractDir)
			assert.Empty(t, res.ExtractedFiles)
			assert.Empty(t, dirEntries(t, root), "nothing may be written before validation passes")
		})
	}
}

func TestExtractArchive_Corrupt(t *testing.T) {
	t.Parallel()

	p, root := newPipeline(t)
	src := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(src, []byte("this is not a zip archive"), 0o600))

	res := p.ExtractArchive(context.Background(), ExtractionRequest{SourcePath: src, OwnerID: "1"})

	require.False(t, res.Success)
	assert.Equal(t, KindInvalidArchive, res.Err.Kind)
	assert.ErrorIs(t, res.Err, ErrInvalidArchive)
	assert.Contains(t, strings.ToLower(res.ErrorMessage), "corrupt")
	assert.Empty(t, dirEntries(t, root))
}

func TestExtractArchive_MissingSource(t *testing.T) {
	t.Parallel()

	p, _ := newPipeline(t)
	res := p.ExtractArchive(context.Background(), ExtractionRequest{
		SourcePath: filepath.Join(t.TempDir(), "gone.zip"),
		OwnerID:    "1",
	})

	require.False(t, res.Success)
	assert.Equal(t, KindIOFailure, res.Err.Kind)
	assert.ErrorIs(t, res.Err, ErrIOFailure)
}

func TestExtractArchive_TraversalStaysInside(t *testing.T) {
	t.Parallel()

	p, root := newPipeline(t)
	src := makeZip(t,
		zipFile{"../../etc/passwd", "root"},
		zipFile{"/abs/evil.sh", "sh"},
		zipFile{`..\..\win.ini`, "ini"},
	)

	res := p.ExtractArchive(context.Background(), ExtractionRequest{SourcePath: src, OwnerID: "9"})

	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, []string{"passwd", "evil.sh", "win.ini"}, baseNames(res.ExtractedFiles))
	for _, path := range res.ExtractedFiles {
		assert.Equal(t, res.ExtractDir, filepath.Dir(path))
	}
	assert.Equal(t, []string{"9"}, dirEntries(t, root))
}

func TestExtractArchive_Collisions(t *testing.T) {
	t.Parallel()

	p, _ := newPipeline(t)
	src := makeZip(t,
		zipFile{"a/photo.jpg", "1"},
		zipFile{"b/photo.jpg", "2"},
		zipFile{"c/photo.jpg", "3"},
	)

	res := p.ExtractArchive(context.Background(), ExtractionRequest{SourcePath: src, OwnerID: "1"})

	require.True(t, res.Success)
	assert.Equal(t, []string{"photo.jpg", "photo_1.jpg", "photo_2.jpg"}, baseNames(res.ExtractedFiles))
	for i, path := range res.ExtractedFiles {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i+1), string(data))
	}
}

func TestExtractArchive_InvalidOwner(t *testing.T) {
	t.Parallel()

	p, root := newPipeline(t)
	src := makeZip(t, zipFile{"a.txt", "a"})

	for _, owner := range []string{"", "..", "/", "***"} {
		res := p.ExtractArchive(context.Background(), ExtractionRequest{SourcePath: src, OwnerID: owner})
		require.False(t, res.Success, owner)
		assert.ErrorIs(t, res.Err, ErrInvalidOwner, owner)
	}
	assert.Empty(t, dirEntries(t, root))
}

func TestExtractArchive_OwnerSanitized(t *testing.T) {
	t.Parallel()

	p, root := newPipeline(t)
	src := makeZip(t, zipFile{"a.txt", "a"})

	res := p.ExtractArchive(context.Background(), ExtractionRequest{SourcePath: src, OwnerID: "../victim"})

	require.True(t, res.Success)
	assert.Equal(t, []string{"victim"}, dirEntries(t, root))
}

func TestExtractArchive_OwnerNamespaceCollapses(t *testing.T) {
	t.Parallel()

	p, root := newPipeline(t)
	src := makeZip(t, zipFile{"a.txt", "a"})

	first := p.ExtractArchive(context.Background(), ExtractionRequest{SourcePath: src, OwnerID: "a/1"})
	second := p.ExtractArchive(context.Background(), ExtractionRequest{SourcePath: src, OwnerID: "b/1"})

	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.Equal(t, []string{"1"}, dirEntries(t, root))
	assert.Len(t, dirEntries(t, filepath.Join(root, "1")), 2)
	assert.NotEqual(t, first.ExtractDir, second.ExtractDir)
}

func TestExtractArchive_Rollback(t *testing.T) {
	t.Parallel()

	// The second entry passes validation but fails its checksum while
	// being written, after the first entry is already on disk.
	files := []zipFile{{"a.bin", "0123456789"}, {"b.bin", "0123456789"}}

	t.Run("enabled", func(t *testing.T) {
		t.Parallel()

		p, root := newPipeline(t, WithTokenSource(fixedTokens{"t"}))
		src := makeZip(t, files...)
		corruptSecondEntry(t, src)

		res := p.ExtractArchive(context.Background(), ExtractionRequest{SourcePath: src, OwnerID: "1"})

		require.False(t, res.Success)
		assert.Equal(t, StageExtracting, res.Stage)
		assert.Empty(t, dirEntries(t, root))
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()

		p, root := newPipeline(t, WithTokenSource(fixedTokens{"t"}), WithRollback(false))
		src := makeZip(t, files...)
		corruptSecondEntry(t, src)

		res := p.ExtractArchive(context.Background(), ExtractionRequest{SourcePath: src, OwnerID: "1"})

		require.False(t, res.Success)
		assert.Equal(t, StageExtracting, res.Stage)
		assert.Equal(t, []string{"a.bin"}, dirEntries(t, filepath.Join(root, "1", "t")))
	})
}

// corruptSecondEntry rewrites the last byte of the second entry's stored
// payload region so its CRC no longer matches.
func corruptSecondEntry(t *testing.T, path string) {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	r, err := zip.NewReader(strings.NewReader(string(data)), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, r.File, 2)

	off, err := r.File[1].DataOffset()
	require.NoError(t, err)
	end := off + int64(r.File[1].CompressedSize64) - 1
	data[end] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestExtractArchive_CanceledRemovesPartial(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	p, root := newPipeline(t,
		WithRollback(false),
		WithProgress(func(string, int64, int64) { once.Do(cancel) }),
	)
	src := makeZip(t, numbered(5, "f%d.txt")...)

	res := p.ExtractArchive(ctx, ExtractionRequest{SourcePath: src, OwnerID: "1"})

	require.False(t, res.Success)
	assert.Equal(t, KindCanceled, res.Err.Kind)
	assert.ErrorIs(t, res.Err, ErrCanceled)
	assert.Empty(t, dirEntries(t, root), "canceled requests never leave partial output")
}

func TestExtractArchive_AlreadyCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, root := newPipeline(t)
	src := makeZip(t, zipFile{"a.txt", "a"})

	res := p.ExtractArchive(ctx, ExtractionRequest{SourcePath: src, OwnerID: "1"})

	require.False(t, res.Success)
	assert.Equal(t, KindCanceled, res.Err.Kind)
	assert.Empty(t, dirEntries(t, root))
}

func TestExtractArchive_ConcurrentOwners(t *testing.T) {
	t.Parallel()

	p, root := newPipeline(t)
	src := makeZip(t, zipFile{"clip.mp4", "v"}, zipFile{"pic.jpg", "i"})

	const n = 8
	results := make([]ExtractionResult, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.ExtractArchive(context.Background(), ExtractionRequest{
				SourcePath: src,
				OwnerID:    fmt.Sprint(i % 2),
			})
		}()
	}
	wg.Wait()

	dirs := map[string]bool{}
	for _, res := range results {
		require.True(t, res.Success, res.ErrorMessage)
		assert.False(t, dirs[res.ExtractDir], "request directories must be unique")
		dirs[res.ExtractDir] = true
		assert.Equal(t, []string{"clip.mp4", "pic.jpg"}, baseNames(res.ExtractedFiles))
	}
	assert.ElementsMatch(t, []string{"0", "1"}, dirEntries(t, root))
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *recordingMetrics) ObserveExtraction(outcome string, _ int, _ int64, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func TestExtractArchive_Metrics(t *testing.T) {
	t.Parallel()

	m := &recordingMetrics{}
	p, _ := newPipeline(t, WithMetrics(m), WithLimits(SafetyLimits{MaxFiles: 1}))

	ok := makeZip(t, zipFile{"a.txt", "a"})
	tooMany := makeZip(t, zipFile{"a.txt", "a"}, zipFile{"b.txt", "b"})

	p.ExtractArchive(context.Background(), ExtractionRequest{SourcePath: ok, OwnerID: "1"})
	p.ExtractArchive(context.Background(), ExtractionRequest{SourcePath: tooMany, OwnerID: "1"})

	assert.Equal(t, []string{"ok", "too_many_files"}, m.outcomes)
}

func TestInspect(t *testing.T) {
	t.Parallel()

	src := makeZip(t, zipFile{"dir/a.txt", "hello"}, zipFile{"b.jpg", ""})

	entries, err := Inspect(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "dir/a.txt", entries[0].Name)
	assert.Equal(t, int64(5), entries[0].UncompressedSize)
	assert.False(t, entries[1].IsDir)
}

func baseNames(paths []string) []string {
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	return names
}

func TestExtractArchive_LimitsFunc(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	maxFiles := 1
	p, _ := newPipeline(t, WithLimitsFunc(func() SafetyLimits {
		mu.Lock()
		defer mu.Unlock()
		return SafetyLimits{MaxFiles: maxFiles}
	}))
	src := makeZip(t, zipFile{"a.txt", "a"}, zipFile{"b.txt", "b"})

	res := p.ExtractArchive(context.Background(), ExtractionRequest{SourcePath: src, OwnerID: "1"})
	require.False(t, res.Success)
	assert.Equal(t, KindTooManyFiles, res.Err.Kind)

	mu.Lock()
	maxFiles = 2
	mu.Unlock()

	res = p.ExtractArchive(context.Background(), ExtractionRequest{SourcePath: src, OwnerID: "1"})
	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, 2, p.Limits().MaxFiles)
}
