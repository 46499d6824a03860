// Package media buckets extracted files by extension.
package media

import (
	"path/filepath"
	"strings"

	"github.com/meigma/unzipbot/internal/safepath"
)

// Kind is the delivery category of a file.
type Kind int

// File kinds, in the order delivery prefers them.
const (
	KindDocument Kind = iota
	KindVideo
	KindImage
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindImage:
		return "image"
	case KindAudio:
		return "audio"
	}
	return "document"
}

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".avi": {}, ".mkv": {}, ".mov": {}, ".wmv": {},
	".flv": {}, ".webm": {}, ".m4v": {}, ".3gp": {},
}

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {},
	".bmp": {}, ".webp": {}, ".tiff": {}, ".svg": {},
}

var audioExtensions = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".ogg": {}, ".m4a": {},
}

// Buckets partitions a path list. Video and Image are disjoint; Other holds
// everything else. Input order is preserved within each bucket.
type Buckets struct {
	Video []string
	Image []string
	Other []string
}

// Total returns the number of classified paths.
func (b Buckets) Total() int {
	return len(b.Video) + len(b.Image) + len(b.Other)
}

// Classify buckets paths by case-insensitive extension. It does no I/O.
func Classify(paths []string) Buckets {
	var b Buckets
	for _, p := range paths {
		switch ext := extension(p); {
		case isVideo(ext):
			b.Video = append(b.Video, p)
		case isImage(ext):
			b.Image = append(b.Image, p)
		default:
			b.Other = append(b.Other, p)
		}
	}
	return b
}

// KindOf returns the delivery kind for a single path.
func KindOf(path string) Kind {
	ext := extension(path)
	switch {
	case isVideo(ext):
		return KindVideo
	case isImage(ext):
		return KindImage
	case isAudio(ext):
		return KindAudio
	}
	return KindDocument
}

// extension ignores leading dots, so ".png" has no extension.
func extension(path string) string {
	_, ext := safepath.SplitExt(filepath.Base(path))
	return strings.ToLower(ext)
}

func isVideo(ext string) bool {
	_, ok := videoExtensions[ext]
	return ok
}

func isImage(ext string) bool {
	_, ok := imageExtensions[ext]
	return ok
}

func isAudio(ext string) bool {
	_, ok := audioExtensions[ext]
	return ok
}
