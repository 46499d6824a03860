package unzipbot

import (
	"errors"
	"log/slog"
	"time"
)

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLimits sets the safety limits checked before and during extraction.
func WithLimits(limits SafetyLimits) Option {
	return func(p *Pipeline) error {
		if limits.MaxFiles < 0 || limits.MaxFileSize < 0 || limits.MaxTotalSize < 0 {
			return errors.New("safety limits must not be negative")
		}
		p.limits = limits
		return nil
	}
}

// WithLimitsFunc makes each request read its limits from fn, so they can
// change while the pipeline runs. It overrides WithLimits.
func WithLimitsFunc(fn func() SafetyLimits) Option {
	return func(p *Pipeline) error {
		if fn == nil {
			return errors.New("limits func is nil")
		}
		p.limitsFunc = fn
		return nil
	}
}

// WithLogger sets a logger for the pipeline. By default, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger != nil {
			p.logger = logger
		}
		return nil
	}
}

// WithTokenSource replaces the default UUIDv7 token source.
func WithTokenSource(src TokenSource) Option {
	return func(p *Pipeline) error {
		if src == nil {
			return errors.New("token source is nil")
		}
		p.tokens = src
		return nil
	}
}

// WithTimeout bounds each request. When it expires the extraction stops and
// its destination directory is removed, regardless of WithRollback.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		p.timeout = d
		return nil
	}
}

// WithRollback controls whether a failed extraction removes its destination
// directory. Enabled by default; disable to keep partial output for
// inspection.
func WithRollback(enabled bool) Option {
	return func(p *Pipeline) error {
		p.rollback = enabled
		return nil
	}
}

// WithMetrics sets the outcome sink.
func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) error {
		if m != nil {
			p.metrics = m
		}
		return nil
	}
}

// WithProgress installs a callback invoked while entry bytes are written.
// It may be called from several goroutines when requests run concurrently.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) error {
		p.progress = fn
		return nil
	}
}
