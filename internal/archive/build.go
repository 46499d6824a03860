package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// Method selects how backup entries are compressed.
type Method string

// Supported backup compression methods.
const (
	MethodDeflate Method = "deflate"
	MethodZstd    Method = "zstd"
	MethodStore   Method = "store"
)

// zipMethod maps a Method to its ZIP method identifier.
func (m Method) zipMethod() (uint16, error) {
	switch m {
	case "", MethodDeflate:
		return zip.Deflate, nil
	case MethodZstd:
		return zstd.ZipMethodWinZip, nil
	case MethodStore:
		return zip.Store, nil
	}
	return 0, fmt.Errorf("unknown compression method %q", m)
}

// BackupResult summarizes a written backup archive.
type BackupResult struct {
	Files int
	Bytes int64
	// Skipped counts hidden files, caches and non-regular files left out.
	Skipped int
}

// Builder writes backup archives.
type Builder struct {
	logger *slog.Logger
}

// NewBuilder creates a Builder. A nil logger disables logging.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{logger: logger}
}

// Build writes every regular file of src to w as a ZIP archive, using the
// slash-separated path relative to the root of src as entry name. Hidden
// files and directories, "__pycache__" directories and "*.pyc" files are
// skipped; symlinks are never followed.
func (b *Builder) Build(ctx context.Context, src fs.FS, w io.Writer, method Method) (BackupResult, error) {
	var result BackupResult

	zipMethod, err := method.zipMethod()
	if err != nil {
		return result, err
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())
	buf := make([]byte, copyBufferSize)

	walkErr := fs.WalkDir(src, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if name == "." {
			return nil
		}
		if skipBackup(name, d) {
			result.Skipped++
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			b.logger.Debug("skipping non-regular file", "path", name, "type", d.Type())
			result.Skipped++
			return nil
		}

		n, err := b.addFile(ctx, zw, src, name, d, zipMethod, buf)
		if err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
		result.Files++
		result.Bytes += n
		return nil
	})
	if walkErr != nil {
		_ = zw.Close()
		return result, walkErr
	}
	if err := zw.Close(); err != nil {
		return result, fmt.Errorf("finish archive: %w", err)
	}

	b.logger.Debug("backup written", "files", result.Files, "bytes", result.Bytes, "skipped", result.Skipped)
	return result, nil
}

func (b *Builder) addFile(ctx context.Context, zw *zip.Writer, src fs.FS, name string, d fs.DirEntry, method uint16, buf []byte) (int64, error) {
	info, err := d.Info()
	if err != nil {
		return 0, err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return 0, err
	}
	header.Name = name
	header.Method = method

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return 0, err
	}
	f, err := src.Open(name)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return copyWithContext(ctx, dst, f, buf, -1)
}

// skipBackup reports whether a walked path is excluded from backups.
func skipBackup(name string, d fs.DirEntry) bool {
	base := path.Base(name)
	if strings.HasPrefix(base, ".") {
		return true
	}
	if d.IsDir() {
		return base == "__pycache__"
	}
	return strings.HasSuffix(base, ".pyc")
}

// BuildBackup archives the directory tree at dir into w.
func BuildBackup(ctx context.Context, dir string, w io.Writer, method Method, logger *slog.Logger) (BackupResult, error) {
	return NewBuilder(logger).Build(ctx, os.DirFS(dir), w, method)
}
