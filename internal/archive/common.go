package archive

import (
	"context"
	"errors"
	"io"
)

const copyBufferSize = 128 * 1024

// errLimit is returned by copyWithContext when src holds more than limit bytes.
var errLimit = errors.New("byte limit exceeded")

// writeError marks failures on the destination side of a copy.
type writeError struct{ err error }

func (e *writeError) Error() string { return e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

// copyWithContext copies from src to dst while honoring context cancellation.
// It checks context every 128KB to balance responsiveness with performance.
// At most limit bytes are written; if src has more, errLimit is returned.
// A negative limit disables the check.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader, buf []byte, limit int64) (int64, error) {
	if len(buf) < copyBufferSize {
		buf = make([]byte, copyBufferSize)
	}
	buf = buf[:copyBufferSize]

	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if limit >= 0 && written+int64(n) > limit {
				return written, errLimit
			}
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return written, &writeError{err: writeErr}
			}
			written += int64(n)
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			return written, readErr
		}
	}
}
