// Package token generates per-request directory names.
package token

import (
	"strings"

	"github.com/google/uuid"
)

// Source yields time-ordered, collision-free tokens. UUIDv7 embeds a
// millisecond timestamp and a monotonic counter, so tokens sort by creation
// time and two requests in the same second never share a directory.
type Source struct{}

// NewSource creates a token source.
func NewSource() *Source { return &Source{} }

// Next returns a new token such as "0192f3a1c0de7b3e8f5a4d2c1b0a9f8e".
func (s *Source) Next() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does.
		id = uuid.New()
	}
	return strings.ReplaceAll(id.String(), "-", "")
}
