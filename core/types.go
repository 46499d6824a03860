// Package core provides the shared types and interfaces for unzipbot.
//
// This package exists to break import cycles between the root unzipbot package
// and internal implementation packages. The unzipbot package re-exports all
// public types from this package, so external users should import unzipbot
// directly, not unzipbot/core.
package core

import (
	"context"
	"time"
)

// Default safety limits applied when a caller does not supply its own.
const (
	DefaultMaxFiles     = 100
	DefaultMaxTotalSize = 100 << 20 // 100 MiB
	DefaultMaxFileSize  = 50 << 20  // 50 MiB
)

// SafetyLimits defines resource bounds for a single archive.
// A zero field means no limit for that dimension.
type SafetyLimits struct {
	MaxFiles     int   // Maximum number of non-directory entries
	MaxTotalSize int64 // Maximum sum of uncompressed entry sizes
	MaxFileSize  int64 // Maximum uncompressed size of one entry
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() SafetyLimits {
	return SafetyLimits{
		MaxFiles:     DefaultMaxFiles,
		MaxTotalSize: DefaultMaxTotalSize,
		MaxFileSize:  DefaultMaxFileSize,
	}
}

// ArchiveEntry describes one record of an archive's central directory.
// Name is taken verbatim from the archive and must not be trusted as a path.
type ArchiveEntry struct {
	Name             string
	CompressedSize   int64
	UncompressedSize int64
	IsDir            bool
	// Method is the ZIP compression method identifier.
	Method uint16
	// Special reports whether the entry is a symlink, device, or pipe.
	Special bool
}

// ExtractionRequest asks the pipeline to unpack one archive.
type ExtractionRequest struct {
	// SourcePath is the local path of a fully downloaded archive.
	SourcePath string
	// OwnerID namespaces the output directory. It is opaque to the pipeline,
	// but only its last path segment survives, with disallowed characters
	// stripped: "a/1" and "b/1" share the namespace "1", as do "x*" and "x".
	// Use identifiers that are already safe names, such as numeric chat IDs.
	OwnerID string
}

// Stage is a step of the extraction state machine.
type Stage int

// Stages in execution order. A request moves forward only; a failure stops
// it at the stage that failed.
const (
	StageValidating Stage = iota + 1
	StageExtracting
	StageClassifying
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageValidating:
		return "validating"
	case StageExtracting:
		return "extracting"
	case StageClassifying:
		return "classifying"
	case StageDone:
		return "done"
	}
	return "unknown"
}

// ExtractionResult is returned exactly once per request.
//
// On failure only Success, Err and ErrorMessage are set. On success the
// listed files belong to the caller, which decides whether to keep them.
type ExtractionResult struct {
	Success      bool
	Err          *ExtractError
	ErrorMessage string
	// Stage is StageDone on success, otherwise the stage that failed.
	Stage Stage

	ExtractDir     string
	TotalFileCount int
	ExtractedFiles []string
	VideoFiles     []string
	ImageFiles     []string

	// ArchiveDigest is the sha256 digest of the source archive.
	ArchiveDigest string
	Duration      time.Duration
}

// ProgressFunc reports bytes written for the entry currently being extracted.
type ProgressFunc func(name string, written, declared int64)

// Validator checks archive metadata against safety limits.
// This interface is implemented by internal/archive.
type Validator interface {
	// Validate reads only the archive's central directory.
	// Returns an *ExtractError describing the first violation found.
	Validate(ctx context.Context, sourcePath string, limits SafetyLimits) error
}

// Extractor writes archive entries into a sandbox directory.
// This interface is implemented by internal/archive.
type Extractor interface {
	// Extract streams every regular entry into destDir and returns the
	// written paths in archive order.
	Extract(ctx context.Context, sourcePath, destDir string, limits SafetyLimits) ([]string, error)
}

// TokenSource produces the per-request directory token.
type TokenSource interface {
	Next() string
}

// Metrics receives pipeline outcomes.
type Metrics interface {
	ObserveExtraction(outcome string, files int, bytes int64, duration time.Duration)
}
