// Package workspace manages request directories below the extraction root.
//
// Layout is root/<owner>/<token>; each token directory is one request.
package workspace

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/meigma/unzipbot/internal/safepath"
)

// Request describes one request directory on disk.
type Request struct {
	Owner   string
	Token   string
	Path    string
	Size    int64
	Files   int
	ModTime time.Time
}

// PruneOptions configures retention.
type PruneOptions struct {
	// MaxAge removes requests whose directory is older than this.
	// Zero means no age limit.
	MaxAge time.Duration

	// MaxSize removes the oldest requests until the total is under this limit.
	// Zero means no size limit.
	MaxSize int64
}

// PruneResult contains statistics about a prune operation.
type PruneResult struct {
	// RequestsRemoved is the number of request directories deleted.
	RequestsRemoved int
	// BytesRemoved is the total bytes freed.
	BytesRemoved int64
	// RequestsRemaining is the number of request directories kept.
	RequestsRemaining int
	// BytesRemaining is the total bytes still on disk.
	BytesRemaining int64
}

// Workspace is the extraction root. Prune calls are serialized; the
// pipeline may keep creating requests concurrently.
type Workspace struct {
	root   string
	logger *slog.Logger
	mu     sync.Mutex
	now    func() time.Time
}

// New returns a Workspace rooted at root. A nil logger disables logging.
func New(root string, logger *slog.Logger) *Workspace {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Workspace{root: root, logger: logger, now: time.Now}
}

// Root returns the extraction root.
func (w *Workspace) Root() string { return w.root }

// List returns all request directories, newest first.
func (w *Workspace) List() ([]Request, error) {
	reqs, err := w.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].ModTime.After(reqs[j].ModTime)
	})
	return reqs, nil
}

// Size returns the total bytes held by all requests.
func (w *Workspace) Size() (int64, error) {
	reqs, err := w.load()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, r := range reqs {
		total += r.Size
	}
	return total, nil
}

// Prune removes request directories by age first, then oldest-first until
// the size limit is met. Owner directories left empty are removed too.
func (w *Workspace) Prune(ctx context.Context, opts PruneOptions) (PruneResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var result PruneResult

	reqs, err := w.load()
	if err != nil {
		return result, err
	}
	if len(reqs) == 0 {
		return result, nil
	}

	toRemove := w.selectRemovals(reqs, opts)

	result, err = w.executeRemovals(ctx, reqs, toRemove)
	if err != nil {
		return result, err
	}

	w.logger.Debug("workspace pruned",
		"removed", result.RequestsRemoved,
		"bytes_removed", result.BytesRemoved,
		"remaining", result.RequestsRemaining,
		"bytes_remaining", result.BytesRemaining)

	return result, nil
}

// Remove deletes a single request directory and its owner directory when it
// becomes empty. Paths outside the root are rejected.
func (w *Workspace) Remove(dir string) error {
	if !safepath.Within(dir, w.root) {
		return errors.New("request directory is outside the workspace")
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	w.removeIfEmpty(filepath.Dir(dir))
	return nil
}

func (w *Workspace) selectRemovals(reqs []Request, opts PruneOptions) map[string]bool {
	toRemove := make(map[string]bool)

	if opts.MaxAge > 0 {
		cutoff := w.now().Add(-opts.MaxAge)
		for _, r := range reqs {
			if r.ModTime.Before(cutoff) {
				toRemove[r.Path] = true
			}
		}
	}

	if opts.MaxSize > 0 {
		markOldest(reqs, toRemove, opts.MaxSize)
	}

	return toRemove
}

// markOldest marks the oldest remaining requests until size is under limit.
func markOldest(reqs []Request, toRemove map[string]bool, maxSize int64) {
	remaining := make([]Request, 0, len(reqs))
	var totalSize int64
	for _, r := range reqs {
		if !toRemove[r.Path] {
			remaining = append(remaining, r)
			totalSize += r.Size
		}
	}

	if totalSize <= maxSize {
		return
	}

	sort.Slice(remaining, func(i, j int) bool {
		return remaining[i].ModTime.Before(remaining[j].ModTime)
	})

	for _, r := range remaining {
		if totalSize <= maxSize {
			break
		}
		toRemove[r.Path] = true
		totalSize -= r.Size
	}
}

func (w *Workspace) executeRemovals(ctx context.Context, reqs []Request, toRemove map[string]bool) (PruneResult, error) {
	var result PruneResult
	owners := make(map[string]bool)
	for _, r := range reqs {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if !toRemove[r.Path] {
			result.RequestsRemaining++
			result.BytesRemaining += r.Size
			continue
		}
		if err := os.RemoveAll(r.Path); err != nil {
			w.logger.Warn("failed to remove request", "path", r.Path, "error", err)
			continue
		}
		owners[filepath.Dir(r.Path)] = true
		result.RequestsRemoved++
		result.BytesRemoved += r.Size
	}
	for dir := range owners {
		w.removeIfEmpty(dir)
	}
	return result, nil
}

func (w *Workspace) removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	if err := os.Remove(dir); err != nil {
		w.logger.Debug("owner directory not removed", "path", dir, "error", err)
	}
}

// load scans root/<owner>/<token>. A missing root is an empty workspace.
func (w *Workspace) load() ([]Request, error) {
	owners, err := os.ReadDir(w.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var reqs []Request
	for _, owner := range owners {
		if !owner.IsDir() {
			continue
		}
		ownerDir := filepath.Join(w.root, owner.Name())
		tokens, err := os.ReadDir(ownerDir)
		if err != nil {
			w.logger.Warn("failed to read owner directory", "path", ownerDir, "error", err)
			continue
		}
		for _, tok := range tokens {
			if !tok.IsDir() {
				continue
			}
			info, err := tok.Info()
			if err != nil {
				continue
			}
			path := filepath.Join(ownerDir, tok.Name())
			size, files := dirUsage(path)
			reqs = append(reqs, Request{
				Owner:   owner.Name(),
				Token:   tok.Name(),
				Path:    path,
				Size:    size,
				Files:   files,
				ModTime: info.ModTime(),
			})
		}
	}
	return reqs, nil
}

// dirUsage sums regular file sizes below dir. Unreadable entries are ignored.
func dirUsage(dir string) (int64, int) {
	var size int64
	var files int
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort accounting
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
			files++
		}
		return nil
	})
	return size, files
}
