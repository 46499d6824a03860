package unzipbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/unzipbot/core"
	"github.com/meigma/unzipbot/internal/archive"
	"github.com/meigma/unzipbot/internal/media"
	"github.com/meigma/unzipbot/internal/metrics"
	"github.com/meigma/unzipbot/internal/safepath"
	"github.com/meigma/unzipbot/internal/token"
)

// dirPerm is used for owner and request directories.
const dirPerm = 0o750

// Outcome label for successful requests; failures use the ErrorKind name.
const outcomeOK = "ok"

// Pipeline validates, extracts and classifies archives. It holds no
// per-request state and is safe for concurrent use.
type Pipeline struct {
	destRoot   string
	limits     SafetyLimits
	limitsFunc func() SafetyLimits
	validator  core.Validator
	extractor  core.Extractor
	tokens     TokenSource
	metrics    Metrics
	logger     *slog.Logger
	timeout    time.Duration
	rollback   bool
	progress   ProgressFunc
}

// NewPipeline creates a pipeline writing below destRoot. The directory is
// created on first successful validation, not here.
func NewPipeline(destRoot string, opts ...Option) (*Pipeline, error) {
	if destRoot == "" {
		return nil, errors.New("destination root is required")
	}
	abs, err := filepath.Abs(destRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve destination root: %w", err)
	}

	p := &Pipeline{
		destRoot: abs,
		limits:   DefaultLimits(),
		tokens:   token.NewSource(),
		metrics:  metrics.Noop{},
		logger:   slog.New(slog.DiscardHandler),
		rollback: true,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	p.validator = archive.NewValidator(p.logger)
	extractor := archive.NewExtractor(p.logger)
	if p.progress != nil {
		extractor.SetProgress(p.progress)
	}
	p.extractor = extractor

	return p, nil
}

// DestRoot returns the absolute destination root.
func (p *Pipeline) DestRoot() string { return p.destRoot }

// Limits returns the safety limits the next request will use.
func (p *Pipeline) Limits() SafetyLimits {
	if p.limitsFunc != nil {
		return p.limitsFunc()
	}
	return p.limits
}

// ExtractArchive runs one request from validation to classification. It
// never panics on bad input and never returns a partially filled success:
// the result is either complete or carries an *ExtractError.
func (p *Pipeline) ExtractArchive(ctx context.Context, req ExtractionRequest) ExtractionResult {
	start := time.Now()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	logger := p.logger.With("owner", req.OwnerID, "source", req.SourcePath)
	limits := p.Limits()

	// Validating
	owner := safepath.Clean(safepath.BaseName(req.OwnerID))
	if owner == "" {
		return p.fail(logger, start, core.StageValidating,
			core.NewError(core.KindIOFailure, "invalid owner identifier", core.ErrInvalidOwner))
	}
	logger.Debug("validating archive")
	if err := p.validator.Validate(ctx, req.SourcePath, limits); err != nil {
		return p.fail(logger, start, core.StageValidating, p.contextual(ctx, err))
	}
	sum, size, err := digestFile(req.SourcePath)
	if err != nil {
		return p.fail(logger, start, core.StageValidating,
			core.NewError(core.KindIOFailure, "cannot read archive", err))
	}

	// Extracting
	ownerDir := filepath.Join(p.destRoot, owner)
	dir := filepath.Join(ownerDir, p.tokens.Next())
	if !safepath.Within(dir, p.destRoot) {
		return p.fail(logger, start, core.StageExtracting,
			core.NewError(core.KindIOFailure, "invalid request directory", core.ErrPathTraversal))
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return p.fail(logger, start, core.StageExtracting,
			core.NewError(core.KindIOFailure, "cannot create extraction directory", err))
	}
	logger.Debug("extracting archive", "dir", dir)

	paths, err := p.extractor.Extract(ctx, req.SourcePath, dir, limits)
	if err != nil {
		ee := p.contextual(ctx, err)
		if p.rollback || ee.Kind == core.KindCanceled {
			p.discard(logger, dir, ownerDir)
		} else {
			logger.Warn("leaving partial extraction on disk", "dir", dir, "files", len(paths))
		}
		return p.fail(logger, start, core.StageExtracting, ee)
	}

	// Classifying
	buckets := media.Classify(paths)

	res := ExtractionResult{
		Success:        true,
		Stage:          core.StageDone,
		ExtractDir:     dir,
		TotalFileCount: len(paths),
		ExtractedFiles: paths,
		VideoFiles:     buckets.Video,
		ImageFiles:     buckets.Image,
		ArchiveDigest:  sum.String(),
		Duration:       time.Since(start),
	}
	p.metrics.ObserveExtraction(outcomeOK, res.TotalFileCount, size, res.Duration)
	logger.Info("archive extracted",
		"dir", dir,
		"files", res.TotalFileCount,
		"videos", len(res.VideoFiles),
		"images", len(res.ImageFiles),
		"digest", res.ArchiveDigest,
		"duration", res.Duration)
	return res
}

// fail builds a failed result and records it.
func (p *Pipeline) fail(logger *slog.Logger, start time.Time, stage core.Stage, ee *core.ExtractError) ExtractionResult {
	duration := time.Since(start)
	p.metrics.ObserveExtraction(ee.Kind.String(), 0, 0, duration)
	logger.Warn("extraction failed", "stage", stage, "kind", ee.Kind, "error", ee)
	return ExtractionResult{
		Success:      false,
		Err:          ee,
		ErrorMessage: ee.Detail,
		Stage:        stage,
		Duration:     duration,
	}
}

// contextual tags err, turning deadline and cancellation into KindCanceled.
func (p *Pipeline) contextual(ctx context.Context, err error) *core.ExtractError {
	ee := core.AsExtractError(err)
	if ctxErr := ctx.Err(); ctxErr != nil && ee.Kind != core.KindCanceled {
		ee = core.NewError(core.KindCanceled, "extraction canceled", ctxErr)
	}
	if ee.Kind == core.KindCanceled && errors.Is(ee.Err, context.DeadlineExceeded) {
		ee = core.NewError(core.KindCanceled, "extraction timed out", ee.Err)
	}
	return ee
}

// discard removes a request directory and its owner directory if empty.
func (p *Pipeline) discard(logger *slog.Logger, dir, ownerDir string) {
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("failed to remove partial extraction", "dir", dir, "error", err)
		return
	}
	// Fails harmlessly when other requests of the same owner exist.
	_ = os.Remove(ownerDir)
}

// digestFile returns the sha256 digest and size of path.
func digestFile(path string) (digest.Digest, int64, error) {
	//nolint:gosec // G304: caller supplies the archive path
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", 0, err
	}
	d, err := digest.Canonical.FromReader(f)
	if err != nil {
		return "", 0, err
	}
	return d, info.Size(), nil
}

// Inspect lists the central directory of the archive at path.
func Inspect(ctx context.Context, path string) ([]ArchiveEntry, error) {
	return archive.NewValidator(nil).Inspect(ctx, path)
}
