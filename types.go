package unzipbot

import "github.com/meigma/unzipbot/core"

// Re-exported from core package.
type (
	// SafetyLimits defines resource bounds for a single archive.
	SafetyLimits = core.SafetyLimits
	// ArchiveEntry describes one record of an archive's central directory.
	ArchiveEntry = core.ArchiveEntry
	// ExtractionRequest asks the pipeline to unpack one archive.
	ExtractionRequest = core.ExtractionRequest
	// ExtractionResult is returned exactly once per request.
	ExtractionResult = core.ExtractionResult
	// Stage is a step of the extraction state machine.
	Stage = core.Stage
	// ProgressFunc reports bytes written for the current entry.
	ProgressFunc = core.ProgressFunc
	// Metrics receives pipeline outcomes.
	Metrics = core.Metrics
	// TokenSource produces per-request directory tokens.
	TokenSource = core.TokenSource
)

// Stages.
const (
	StageValidating  = core.StageValidating
	StageExtracting  = core.StageExtracting
	StageClassifying = core.StageClassifying
	StageDone        = core.StageDone
)

// DefaultLimits returns 100 files, 100 MiB total and 50 MiB per file.
func DefaultLimits() SafetyLimits { return core.DefaultLimits() }
