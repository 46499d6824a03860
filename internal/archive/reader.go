// Package archive validates, extracts, and builds ZIP archives.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/meigma/unzipbot/core"
)

// Compile-time interface implementation check.
var _ core.Validator = (*Validator)(nil)

// corruptDetail is shown for every structural failure, whether it is found
// while listing or while reading entry contents.
const corruptDetail = "Invalid or corrupted ZIP file"

// openArchive opens path for central-directory access. Errors opening the
// file itself are I/O failures; errors parsing it mean the archive is corrupt.
func openArchive(path string) (*zip.Reader, *os.File, error) {
	//nolint:gosec // G304: caller supplies the archive path
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, core.NewError(core.KindIOFailure, "cannot open archive", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, core.NewError(core.KindIOFailure, "cannot stat archive", err)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, nil, core.NewError(core.KindIOFailure, "archive is not a regular file", nil)
	}

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		_ = f.Close()
		return nil, nil, core.NewError(core.KindInvalidArchive, corruptDetail, err)
	}
	zr.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())
	zr.RegisterDecompressor(zstd.ZipMethodPKWare, zstd.ZipDecompressor())
	return zr, f, nil
}

// toEntry converts a central-directory record.
func toEntry(f *zip.File) core.ArchiveEntry {
	mode := f.Mode()
	return core.ArchiveEntry{
		Name:             f.Name,
		CompressedSize:   clampSize(f.CompressedSize64),
		UncompressedSize: clampSize(f.UncompressedSize64),
		IsDir:            mode.IsDir(),
		Method:           f.Method,
		Special:          mode&(fs.ModeSymlink|fs.ModeDevice|fs.ModeNamedPipe|fs.ModeSocket|fs.ModeCharDevice) != 0,
	}
}

func clampSize(n uint64) int64 {
	if n > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(n)
}

// Validator checks archive metadata against safety limits without
// decompressing any entry.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates a Validator. A nil logger disables logging.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Validator{logger: logger}
}

// Inspect lists the archive's central directory.
func (v *Validator) Inspect(ctx context.Context, sourcePath string) ([]core.ArchiveEntry, error) {
	zr, f, err := openArchive(sourcePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries := make([]core.ArchiveEntry, 0, len(zr.File))
	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, core.NewError(core.KindCanceled, "inspection canceled", err)
		}
		entries = append(entries, toEntry(zf))
	}
	return entries, nil
}

// Validate walks the central directory and returns the first limit violation.
// Declared sizes are trusted here; the extractor enforces the same limits on
// bytes actually written.
func (v *Validator) Validate(ctx context.Context, sourcePath string, limits core.SafetyLimits) error {
	entries, err := v.Inspect(ctx, sourcePath)
	if err != nil {
		return err
	}
	if err := CheckEntries(entries, limits); err != nil {
		v.logger.Debug("archive rejected", "path", sourcePath, "kind", core.KindOf(err), "error", err)
		return err
	}
	v.logger.Debug("archive validated", "path", sourcePath, "entries", len(entries))
	return nil
}

// CheckEntries applies limits to a listing. Directories are skipped; every
// other entry counts toward the file limit, including ones the extractor
// will later skip.
func CheckEntries(entries []core.ArchiveEntry, limits core.SafetyLimits) error {
	var count int
	var total int64
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		size := e.UncompressedSize
		if size < 0 {
			return core.NewError(core.KindInvalidArchive, corruptDetail, fmt.Errorf("negative size for %q", e.Name))
		}

		count++
		if total > math.MaxInt64-size {
			total = math.MaxInt64
		} else {
			total += size
		}

		if limits.MaxFiles > 0 && count > limits.MaxFiles {
			return tooManyFiles(limits.MaxFiles)
		}
		if limits.MaxFileSize > 0 && size > limits.MaxFileSize {
			return fileTooLarge(e.Name, limits.MaxFileSize)
		}
		if limits.MaxTotalSize > 0 && total > limits.MaxTotalSize {
			return totalTooLarge(limits.MaxTotalSize)
		}
	}
	return nil
}

// IsCorrupt reports whether err came from malformed archive data.
func IsCorrupt(err error) bool {
	return errors.Is(err, zip.ErrFormat) ||
		errors.Is(err, zip.ErrChecksum) ||
		errors.Is(err, zip.ErrAlgorithm)
}

func formatSize(n int64) string {
	if n < 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}
