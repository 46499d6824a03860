package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions.
var (
	// ErrInvalidArchive indicates the archive structure could not be parsed.
	ErrInvalidArchive = errors.New("unzipbot: invalid or corrupt archive")

	// ErrExtractLimits indicates a safety limit was exceeded.
	ErrExtractLimits = errors.New("unzipbot: extraction limits exceeded")

	// ErrIOFailure indicates reading or writing extracted data failed.
	ErrIOFailure = errors.New("unzipbot: i/o failure")

	// ErrPathTraversal indicates a write would have left the sandbox directory.
	ErrPathTraversal = errors.New("unzipbot: path traversal detected")

	// ErrInvalidOwner indicates the owner identifier is empty after sanitizing.
	ErrInvalidOwner = errors.New("unzipbot: invalid owner identifier")

	// ErrCanceled indicates the request was canceled or timed out.
	ErrCanceled = errors.New("unzipbot: extraction canceled")
)

// ErrorKind classifies pipeline failures.
type ErrorKind int

// Error kinds. The set is closed; callers may switch on it exhaustively.
const (
	KindInvalidArchive ErrorKind = iota + 1
	KindTooManyFiles
	KindFileTooLarge
	KindArchiveTooLarge
	KindIOFailure
	KindCanceled
)

var kindNames = map[ErrorKind]string{
	KindInvalidArchive:  "invalid_archive",
	KindTooManyFiles:    "too_many_files",
	KindFileTooLarge:    "file_too_large",
	KindArchiveTooLarge: "archive_too_large",
	KindIOFailure:       "io_failure",
	KindCanceled:        "canceled",
}

// String returns the snake_case name used in logs and metrics.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// sentinel maps a kind to the sentinel it matches with errors.Is.
func (k ErrorKind) sentinel() error {
	switch k {
	case KindInvalidArchive:
		return ErrInvalidArchive
	case KindTooManyFiles, KindFileTooLarge, KindArchiveTooLarge:
		return ErrExtractLimits
	case KindIOFailure:
		return ErrIOFailure
	case KindCanceled:
		return ErrCanceled
	}
	return nil
}

// ExtractError is the tagged failure returned by every pipeline stage.
type ExtractError struct {
	Kind   ErrorKind
	Detail string // human-readable, safe to show to the requester
	Err    error  // underlying cause, may be nil
}

// NewError creates an ExtractError.
func NewError(kind ErrorKind, detail string, cause error) *ExtractError {
	return &ExtractError{Kind: kind, Detail: detail, Err: cause}
}

// Error implements error.
func (e *ExtractError) Error() string {
	if e.Err != nil && e.Detail == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Detail + ": " + e.Err.Error()
	}
	return e.Detail
}

// Unwrap returns the underlying cause.
func (e *ExtractError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for this error's kind.
func (e *ExtractError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// AsExtractError converts err into an *ExtractError. Errors that are not
// already tagged are classified as KindIOFailure.
func AsExtractError(err error) *ExtractError {
	if err == nil {
		return nil
	}
	var ee *ExtractError
	if errors.As(err, &ee) {
		return ee
	}
	return NewError(KindIOFailure, "extraction failed", err)
}

// KindOf returns the kind of err, or zero if err is not an *ExtractError.
func KindOf(err error) ErrorKind {
	var ee *ExtractError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return 0
}
