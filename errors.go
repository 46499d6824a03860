package unzipbot

import "github.com/meigma/unzipbot/core"

// Sentinel errors for common failure conditions.
// Re-exported from core package.
var (
	// ErrInvalidArchive indicates the archive structure could not be parsed.
	ErrInvalidArchive = core.ErrInvalidArchive

	// ErrExtractLimits indicates a safety limit was exceeded.
	ErrExtractLimits = core.ErrExtractLimits

	// ErrIOFailure indicates reading or writing extracted data failed.
	ErrIOFailure = core.ErrIOFailure

	// ErrPathTraversal indicates a write would have left the sandbox directory.
	ErrPathTraversal = core.ErrPathTraversal

	// ErrInvalidOwner indicates the owner identifier is unusable.
	ErrInvalidOwner = core.ErrInvalidOwner

	// ErrCanceled indicates the request was canceled or timed out.
	ErrCanceled = core.ErrCanceled
)

// ErrorKind classifies pipeline failures.
type ErrorKind = core.ErrorKind

// ExtractError is the tagged failure carried by a failed ExtractionResult.
type ExtractError = core.ExtractError

// Error kinds.
const (
	KindInvalidArchive  = core.KindInvalidArchive
	KindTooManyFiles    = core.KindTooManyFiles
	KindFileTooLarge    = core.KindFileTooLarge
	KindArchiveTooLarge = core.KindArchiveTooLarge
	KindIOFailure       = core.KindIOFailure
	KindCanceled        = core.KindCanceled
)

// KindOf returns the kind of err, or zero if err is not an *ExtractError.
func KindOf(err error) ErrorKind { return core.KindOf(err) }
