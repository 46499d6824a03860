// Package progress reports bytes flowing through an extraction.
package progress

import (
	"errors"
	"io"
)

// DefaultStep is how many bytes pass between two callbacks.
const DefaultStep = 64 * 1024

// Callback is called with the cumulative byte count and the expected total
// (-1 if unknown).
type Callback func(transferred, total int64)

// Reader wraps an io.Reader and reports progress at most once per Step bytes,
// plus a final report when the underlying reader hits EOF.
type Reader struct {
	reader   io.Reader
	callback Callback
	total    int64
	read     int64
	reported int64
	done     bool

	// Step overrides DefaultStep when positive.
	Step int64
}

// NewReader creates a progress-tracking reader. A nil callback is allowed.
func NewReader(r io.Reader, total int64, callback Callback) *Reader {
	return &Reader{
		reader:   r,
		callback: callback,
		total:    total,
	}
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.read += int64(n)
	if r.callback == nil {
		return n, err
	}

	step := r.Step
	if step <= 0 {
		step = DefaultStep
	}
	switch {
	case errors.Is(err, io.EOF) && !r.done:
		r.done = true
		r.report()
	case n > 0 && r.read-r.reported >= step:
		r.report()
	}
	return n, err
}

// Transferred returns the number of bytes read so far.
func (r *Reader) Transferred() int64 { return r.read }

func (r *Reader) report() {
	r.reported = r.read
	r.callback(r.read, r.total)
}

// Close closes the underlying reader if it implements io.Closer.
func (r *Reader) Close() error {
	if closer, ok := r.reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
