package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/klauspost/compress/zip"

	"github.com/meigma/unzipbot/core"
	"github.com/meigma/unzipbot/internal/progress"
	"github.com/meigma/unzipbot/internal/safepath"
)

// Compile-time interface implementation check.
var _ core.Extractor = (*Extractor)(nil)

// filePerm is the mode of every extracted file. Archive modes are ignored.
const filePerm fs.FileMode = 0o640

// Extractor streams archive entries into a flat sandbox directory.
type Extractor struct {
	logger   *slog.Logger
	progress core.ProgressFunc
}

// NewExtractor creates an Extractor. A nil logger disables logging.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Extractor{logger: logger}
}

// SetProgress installs a callback invoked as entry bytes are written.
func (e *Extractor) SetProgress(fn core.ProgressFunc) {
	e.progress = fn
}

// extractState tracks extraction progress for limit enforcement.
type extractState struct {
	limits core.SafetyLimits
	total  int64
	paths  []string
	buf    []byte
}

// Extract writes every regular entry of the archive at sourcePath into
// destDir, which must already exist. Entry names are reduced to a sanitized
// base name and deduplicated, so all output lands directly inside destDir.
//
// The returned paths are in archive order. On error, the paths written so far
// are returned along with an *core.ExtractError; files are not removed.
func (e *Extractor) Extract(ctx context.Context, sourcePath, destDir string, limits core.SafetyLimits) ([]string, error) {
	zr, f, err := openArchive(sourcePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	state := &extractState{
		limits: limits,
		buf:    make([]byte, copyBufferSize),
	}

	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return state.paths, core.NewError(core.KindCanceled, "extraction canceled", err)
		}

		entry := toEntry(zf)
		if entry.IsDir {
			continue
		}
		if entry.Special {
			e.logger.Warn("skipping special entry", "entry", zf.Name, "mode", zf.Mode())
			continue
		}

		if err := e.extractFile(ctx, destDir, zf, entry, state); err != nil {
			return state.paths, err
		}
	}

	return state.paths, nil
}

// extractFile streams one entry to a fresh file in destDir.
func (e *Extractor) extractFile(ctx context.Context, destDir string, zf *zip.File, entry core.ArchiveEntry, state *extractState) error {
	name := safepath.SafeName(zf.Name, len(state.paths))
	if err := safepath.ValidatePath(zf.Name); err != nil {
		e.logger.Warn("unsafe entry name flattened", "entry", zf.Name, "name", name)
	}

	rc, err := zf.Open()
	if err != nil {
		return core.NewError(core.KindInvalidArchive, corruptDetail, fmt.Errorf("open %q: %w", zf.Name, err))
	}
	defer rc.Close()

	out, path, err := safepath.CreateUnique(destDir, name, filePerm)
	if err != nil {
		return core.NewError(core.KindIOFailure, "cannot create "+name, err)
	}

	var src io.Reader = rc
	if e.progress != nil {
		report := e.progress
		src = progress.NewReader(rc, entry.UncompressedSize, func(written, total int64) {
			report(name, written, total)
		})
	}

	limit, limitKind := state.remaining()
	n, copyErr := copyWithContext(ctx, out, src, state.buf, limit)
	closeErr := out.Close()
	state.total += n

	if copyErr != nil {
		e.removePartial(path)
		return e.classifyCopyError(copyErr, zf.Name, name, limitKind, state.limits)
	}
	if closeErr != nil {
		e.removePartial(path)
		return core.NewError(core.KindIOFailure, "cannot write "+name, closeErr)
	}

	state.paths = append(state.paths, path)
	e.logger.Debug("entry extracted", "entry", zf.Name, "path", path, "bytes", n)
	return nil
}

// removePartial deletes a file whose entry failed mid-stream. Only fully
// written files stay in the request directory.
func (e *Extractor) removePartial(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		e.logger.Warn("failed to remove partial file", "path", path, "error", err)
	}
}

// remaining returns how many more bytes the current entry may produce and
// which limit applies. A negative limit means unbounded.
func (s *extractState) remaining() (int64, core.ErrorKind) {
	limit := int64(-1)
	kind := core.KindFileTooLarge
	if s.limits.MaxFileSize > 0 {
		limit = s.limits.MaxFileSize
	}
	if s.limits.MaxTotalSize > 0 {
		rem := s.limits.MaxTotalSize - s.total
		if rem < 0 {
			rem = 0
		}
		if limit < 0 || rem < limit {
			limit = rem
			kind = core.KindArchiveTooLarge
		}
	}
	return limit, kind
}

func (e *Extractor) classifyCopyError(err error, entryName, name string, limitKind core.ErrorKind, limits core.SafetyLimits) error {
	var we *writeError
	var pe *fs.PathError
	switch {
	case errors.Is(err, errLimit):
		e.logger.Warn("entry exceeded size limit while writing", "entry", entryName, "kind", limitKind)
		if limitKind == core.KindArchiveTooLarge {
			return totalTooLarge(limits.MaxTotalSize)
		}
		return fileTooLarge(entryName, limits.MaxFileSize)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return core.NewError(core.KindCanceled, "extraction canceled", err)
	case errors.As(err, &we):
		return core.NewError(core.KindIOFailure, "cannot write "+name, we.err)
	case IsCorrupt(err), errors.Is(err, io.ErrUnexpectedEOF):
		return core.NewError(core.KindInvalidArchive, corruptDetail, fmt.Errorf("read %q: %w", entryName, err))
	case errors.As(err, &pe):
		return core.NewError(core.KindIOFailure, "cannot read archive", err)
	default:
		// Decompressor errors (flate, zstd) surface here.
		return core.NewError(core.KindInvalidArchive, corruptDetail, fmt.Errorf("read %q: %w", entryName, err))
	}
}

func tooManyFiles(limit int) error {
	return core.NewError(core.KindTooManyFiles, fmt.Sprintf("Too many files in archive (max: %d)", limit), nil)
}

func fileTooLarge(name string, limit int64) error {
	return core.NewError(core.KindFileTooLarge,
		fmt.Sprintf("File too large: %s (max: %s per file)", name, formatSize(limit)), nil)
}

func totalTooLarge(limit int64) error {
	return core.NewError(core.KindArchiveTooLarge,
		fmt.Sprintf("Total uncompressed size too large (max: %s)", formatSize(limit)), nil)
}
